package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func deny(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
}

func TestRateLimiterPerClient(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst spent")
	assert.True(t, l.Allow("b"), "other clients keep their own bucket")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))

	now = now.Add(time.Hour)
	l.Allow("c")
	assert.Len(t, l.clients, 1, "idle clients are evicted")
}

func TestLimitMiddleware(t *testing.T) {
	h := NewRateLimiter(0.001, 1).Limit(deny(http.StatusTooManyRequests))(http.HandlerFunc(ok))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/issue", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAdminToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"not bearer", "s3cret", "s3cret", http.StatusUnauthorized},
		{"locked", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AdminToken(tt.token, deny(http.StatusUnauthorized))(http.HandlerFunc(ok))
			req := httptest.NewRequest(http.MethodPost, "/admin/coupons/sweep", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
