package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

func TestExtend(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)

	dbtest.Coupon(t, db, model.Coupon{Code: "LATER", Kind: model.KindAmount, Amount: dbtest.Amount("2")})
	dbtest.Coupon(t, db, model.Coupon{Code: "GONE", Kind: model.KindAmount, Amount: dbtest.Amount("2"), Status: model.StatusUsed})

	m := NewMaintenance(db)
	m.now = func() time.Time { return now }

	_, err := m.Extend(ctx, "LATER", 0)
	assert.Equal(t, apperr.BadHours, apperr.ReasonOf(err))

	c, err := m.Extend(ctx, "LATER", 48)
	require.NoError(t, err)
	assert.True(t, c.ExpiresAt.Time.Equal(now.Add(48*time.Hour)))
	assert.True(t, c.ActiveFrom.Time.Equal(now))

	_, err = m.Extend(ctx, "GONE", 1)
	assert.Equal(t, apperr.InvalidState, apperr.ReasonOf(err))

	_, err = m.Extend(ctx, "MISSING", 1)
	assert.Equal(t, apperr.NotFound, apperr.ReasonOf(err))
}

func TestSweepExpiresStaleCoupons(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	now := time.Now()

	dbtest.Coupon(t, db, model.Coupon{Code: "OLD", Kind: model.KindAmount, Amount: dbtest.Amount("1"), ExpiresAt: model.MillisOf(now.Add(-time.Hour))})
	dbtest.Coupon(t, db, model.Coupon{Code: "FRESH", Kind: model.KindAmount, Amount: dbtest.Amount("1"), ExpiresAt: model.MillisOf(now.Add(time.Hour))})
	dbtest.Coupon(t, db, model.Coupon{Code: "FOREVER", Kind: model.KindAmount, Amount: dbtest.Amount("1")})

	n, err := NewMaintenance(db).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	repo := repository.NewCouponRepository()
	old, err := repo.GetByCode(ctx, db, "OLD")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, old.Status)

	fresh, err := repo.GetByCode(ctx, db, "FRESH")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, fresh.Status)
}
