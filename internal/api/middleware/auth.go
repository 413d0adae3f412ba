package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminToken rejects requests that do not carry "Authorization: Bearer
// <token>". An empty token locks the routes entirely.
func AdminToken(token string, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
