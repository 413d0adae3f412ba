package coupon

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
)

func at(hour, minute int) time.Time {
	// 2026-03-04 is a Wednesday
	return time.Date(2026, time.March, 4, hour, minute, 0, 0, time.UTC)
}

func minutes(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func TestEvaluateWindowWrapsMidnight(t *testing.T) {
	eval := NewEvaluator(time.UTC)
	c := &model.Coupon{
		Status:      model.StatusActive,
		WindowStart: minutes(22 * 60),
		WindowEnd:   minutes(3 * 60),
	}

	assert.Equal(t, apperr.Valid, eval.Evaluate(c, at(23, 0), Subject{}))
	assert.Equal(t, apperr.Valid, eval.Evaluate(c, at(1, 0), Subject{}))
	assert.Equal(t, apperr.OutsideTimeWindow, eval.Evaluate(c, at(12, 0), Subject{}))
	assert.Equal(t, apperr.OutsideTimeWindow, eval.Evaluate(c, at(3, 0), Subject{}))
	assert.Equal(t, apperr.Valid, eval.Evaluate(c, at(22, 0), Subject{}))
}

func TestEvaluateUsesConfiguredZone(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skip("tzdata not available")
	}
	c := &model.Coupon{
		Status:      model.StatusActive,
		WindowStart: minutes(12 * 60),
		WindowEnd:   minutes(13 * 60),
	}

	// 11:30 UTC is 12:30 in Madrid in March
	assert.Equal(t, apperr.Valid, NewEvaluator(madrid).Evaluate(c, at(11, 30), Subject{}))
	assert.Equal(t, apperr.OutsideTimeWindow, NewEvaluator(time.UTC).Evaluate(c, at(11, 30), Subject{}))
}

func TestEvaluateOrder(t *testing.T) {
	now := at(12, 0)
	eval := NewEvaluator(time.UTC)

	owned := sql.NullString{String: "cust-1", Valid: true}

	tests := []struct {
		name    string
		coupon  *model.Coupon
		subject Subject
		want    apperr.Reason
	}{
		{"missing", nil, Subject{}, apperr.NotFound},
		{
			"disabled wins over everything",
			&model.Coupon{Status: model.StatusDisabled, ExpiresAt: model.MillisOf(now.Add(-time.Hour))},
			Subject{}, apperr.Disabled,
		},
		{"used", &model.Coupon{Status: model.StatusUsed}, Subject{}, apperr.Used},
		{
			"limit reached while still active",
			&model.Coupon{Status: model.StatusActive, UsageLimit: sql.NullInt64{Int64: 2, Valid: true}, UsedCount: 2},
			Subject{}, apperr.Used,
		},
		{"expired status", &model.Coupon{Status: model.StatusExpired}, Subject{}, apperr.ExpiredOrNotYet},
		{
			"not yet active",
			&model.Coupon{Status: model.StatusActive, ActiveFrom: model.MillisOf(now.Add(time.Minute))},
			Subject{}, apperr.ExpiredOrNotYet,
		},
		{
			"expiry is exclusive",
			&model.Coupon{Status: model.StatusActive, ExpiresAt: model.MillisOf(now)},
			Subject{}, apperr.ExpiredOrNotYet,
		},
		{
			"wrong weekday",
			&model.Coupon{Status: model.StatusActive, DaysActive: model.IntList{0, 6}},
			Subject{}, apperr.OutsideTimeWindow,
		},
		{
			"window before owner",
			&model.Coupon{Status: model.StatusActive, WindowEnd: minutes(60), AssignedToID: owned},
			Subject{CustomerID: "cust-2"}, apperr.OutsideTimeWindow,
		},
		{
			"not owner",
			&model.Coupon{Status: model.StatusActive, AssignedToID: owned},
			Subject{CustomerID: "cust-2"}, apperr.NotOwner,
		},
		{
			"anonymous caller on assigned coupon",
			&model.Coupon{Status: model.StatusActive, AssignedToID: owned},
			Subject{}, apperr.NotOwner,
		},
		{
			"segment mismatch",
			&model.Coupon{Status: model.StatusActive, Segments: model.StringList{"vip"}},
			Subject{Segment: "student"}, apperr.SegmentMismatch,
		},
		{
			"owner in segment on the right day",
			&model.Coupon{
				Status:       model.StatusActive,
				AssignedToID: owned,
				Segments:     model.StringList{"vip"},
				DaysActive:   model.IntList{3},
				ExpiresAt:    model.MillisOf(now.Add(time.Hour)),
			},
			Subject{CustomerID: "cust-1", Segment: "vip"}, apperr.Valid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval.Evaluate(tt.coupon, now, tt.subject))
		})
	}
}
