package coupon

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// MaxAssignHours bounds how far /assign may push an expiry.
const MaxAssignHours = 24 * 365

// Maintenance extends coupons and expires stale ones.
type Maintenance struct {
	db      *sqlx.DB
	coupons *repository.CouponRepository
	now     func() time.Time
}

// NewMaintenance creates a maintenance helper
func NewMaintenance(db *sqlx.DB) *Maintenance {
	return &Maintenance{
		db:      db,
		coupons: repository.NewCouponRepository(),
		now:     time.Now,
	}
}

// Extend activates code now if it had no start and sets its expiry to
// now + hours. Only ACTIVE coupons can be extended.
func (m *Maintenance) Extend(ctx context.Context, code string, hours int) (*model.Coupon, error) {
	if hours <= 0 || hours > MaxAssignHours {
		return nil, apperr.Validation(apperr.BadHours, "hours must be between 1 and 8760")
	}
	now := m.now()

	ok, err := m.coupons.Extend(ctx, m.db, code, now.Add(time.Duration(hours)*time.Hour), now)
	if err != nil {
		return nil, apperr.Wrap("assign.extend", err)
	}

	c, err := m.coupons.GetByCode(ctx, m.db, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("coupon not found")
		}
		return nil, apperr.Wrap("assign.reload", err)
	}
	if !ok {
		return nil, apperr.Conflict(apperr.InvalidState, "coupon in state "+string(c.Status))
	}
	return c, nil
}

// Sweep marks ACTIVE coupons past their expiry as EXPIRED
func (m *Maintenance) Sweep(ctx context.Context) (int64, error) {
	n, err := m.coupons.ExpireSweep(ctx, m.db, m.now())
	if err != nil {
		return 0, apperr.Wrap("sweep.update", err)
	}
	return n, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (m *Maintenance) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		log.Printf("Coupon sweeper disabled")
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				log.Printf("stage=sweep.update error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Expired %d coupons", n)
			}
		}
	}
}
