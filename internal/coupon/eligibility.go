// Package coupon decides whether coupons may be used, hands pool coupons to
// claimants and consumes coupon uses exactly once.
package coupon

import (
	"time"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
)

// Subject is who is trying to use a coupon.
type Subject struct {
	CustomerID string
	Segment    string
}

// Evaluator checks coupon usability. Weekdays and minutes of day are taken
// in loc.
type Evaluator struct {
	loc *time.Location
}

// NewEvaluator creates an evaluator for the given time zone. A nil location
// means UTC.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

// Location returns the zone used for day and time windows.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Evaluate returns the first reason c cannot be used by s at now, or
// apperr.Valid. Both the validate preview and redemption call it.
func (e *Evaluator) Evaluate(c *model.Coupon, now time.Time, s Subject) apperr.Reason {
	if c == nil {
		return apperr.NotFound
	}

	switch c.Status {
	case model.StatusDisabled:
		return apperr.Disabled
	case model.StatusUsed:
		return apperr.Used
	case model.StatusExpired:
		return apperr.ExpiredOrNotYet
	}
	if c.Exhausted() {
		return apperr.Used
	}

	if c.ActiveFrom.Valid && now.Before(c.ActiveFrom.Time) {
		return apperr.ExpiredOrNotYet
	}
	if c.ExpiresAt.Valid && !now.Before(c.ExpiresAt.Time) {
		return apperr.ExpiredOrNotYet
	}

	if !e.inWindow(c, now) {
		return apperr.OutsideTimeWindow
	}

	if c.AssignedToID.Valid && c.AssignedToID.String != s.CustomerID {
		return apperr.NotOwner
	}

	if len(c.Segments) > 0 && !c.Segments.Contains(s.Segment) {
		return apperr.SegmentMismatch
	}

	return apperr.Valid
}

func (e *Evaluator) inWindow(c *model.Coupon, now time.Time) bool {
	local := now.In(e.loc)

	if len(c.DaysActive) > 0 && !c.DaysActive.Contains(int(local.Weekday())) {
		return false
	}

	m := int64(local.Hour()*60 + local.Minute())
	start, end := c.WindowStart, c.WindowEnd

	switch {
	case start.Valid && end.Valid:
		if start.Int64 == end.Int64 {
			// equal bounds mean the whole day
			return true
		}
		if start.Int64 > end.Int64 {
			// wraps midnight
			return m >= start.Int64 || m < end.Int64
		}
		return m >= start.Int64 && m < end.Int64
	case start.Valid:
		return m >= start.Int64
	case end.Valid:
		return m < end.Int64
	}
	return true
}
