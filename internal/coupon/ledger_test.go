package coupon

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

func limit(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: true}
}

func TestRedeemConcurrentRespectsUsageLimit(t *testing.T) {
	db := dbtest.Open(t)
	const usageLimit, attempts = 3, 12

	c := dbtest.Coupon(t, db, model.Coupon{
		Code: "LIMIT3", Kind: model.KindAmount, Amount: dbtest.Amount("2"), UsageLimit: limit(usageLimit),
	})
	ledger := NewLedger(db, NewEvaluator(time.UTC))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		reasons []apperr.Reason
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RedeemCode(context.Background(), RedeemRequest{Code: "LIMIT3"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			reasons = append(reasons, apperr.ReasonOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, usageLimit, ok)
	for _, r := range reasons {
		assert.Contains(t, []apperr.Reason{apperr.AlreadyUsed, apperr.InvalidState}, r)
	}

	stored, err := repository.NewCouponRepository().GetByID(context.Background(), db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(usageLimit), stored.UsedCount)
	assert.Equal(t, model.StatusUsed, stored.Status)

	history, err := repository.NewRedemptionRepository().ListByCoupon(context.Background(), db, c.ID)
	require.NoError(t, err)
	assert.Len(t, history, usageLimit)
}

func TestAmountCouponSingleUseScenario(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.Coupon(t, db, model.Coupon{
		Code: "FIVE", Kind: model.KindAmount, Amount: dbtest.Amount("5.00"), UsageLimit: limit(1),
	})
	ledger := NewLedger(db, NewEvaluator(time.UTC))
	ctx := context.Background()

	red, err := ledger.RedeemCode(ctx, RedeemRequest{
		Code: "FIVE", SaleID: "sale-1", Subtotal: decimal.NewNullDecimal(dec("12.00")),
	})
	require.NoError(t, err)
	assert.True(t, red.Discount.Decimal.Equal(dec("5")))
	assert.Equal(t, model.KindAmount, red.Kind)

	_, err = ledger.RedeemCode(ctx, RedeemRequest{Code: "FIVE", SaleID: "sale-2"})
	assert.Equal(t, apperr.AlreadyUsed, apperr.ReasonOf(err))
}

func TestValidateThenRedeemRoundTrip(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	eval := NewEvaluator(time.UTC)

	dbtest.Coupon(t, db, model.Coupon{
		Code: "VIP20", Kind: model.KindPercent, Percent: dbtest.Amount("20"),
		Segments: model.StringList{"vip"}, AssignedToID: nullString("cust-1"),
	})

	c, err := repository.NewCouponRepository().GetByCode(ctx, db, "VIP20")
	require.NoError(t, err)
	subject := Subject{CustomerID: "cust-1", Segment: "vip"}
	require.Equal(t, apperr.Valid, eval.Evaluate(c, time.Now(), subject))

	_, err = NewLedger(db, eval).RedeemCode(ctx, RedeemRequest{Code: "VIP20", CustomerID: "cust-1", Segment: "vip"})
	require.NoError(t, err)
}

func TestRedeemRejections(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	ledger := NewLedger(db, NewEvaluator(time.UTC))

	dbtest.Coupon(t, db, model.Coupon{Code: "OFF", Kind: model.KindAmount, Amount: dbtest.Amount("1"), Status: model.StatusDisabled})
	dbtest.Coupon(t, db, model.Coupon{Code: "MINE", Kind: model.KindAmount, Amount: dbtest.Amount("1"), AssignedToID: nullString("cust-1")})
	dbtest.Coupon(t, db, model.Coupon{
		Code: "RANGE", Kind: model.KindPercent, Variant: model.VariantRange,
		PercentMin: dbtest.Amount("5"), PercentMax: dbtest.Amount("10"),
	})

	_, err := ledger.RedeemCode(ctx, RedeemRequest{Code: "NOPE"})
	assert.Equal(t, apperr.NotFound, apperr.ReasonOf(err))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = ledger.RedeemCode(ctx, RedeemRequest{Code: "OFF"})
	assert.Equal(t, apperr.InvalidState, apperr.ReasonOf(err))

	_, err = ledger.RedeemCode(ctx, RedeemRequest{Code: "MINE", CustomerID: "cust-2"})
	assert.Equal(t, apperr.NotOwner, apperr.ReasonOf(err))

	_, err = ledger.RedeemCode(ctx, RedeemRequest{Code: "RANGE", DiscountValue: decimal.NewNullDecimal(dec("50"))})
	assert.Equal(t, apperr.BadRange, apperr.ReasonOf(err))

	red, err := ledger.RedeemCode(ctx, RedeemRequest{Code: "RANGE", DiscountValue: decimal.NewNullDecimal(dec("7"))})
	require.NoError(t, err)
	assert.True(t, red.Percent.Decimal.Equal(dec("7")))
}

func TestRedeemTwiceForSameSaleIsRejected(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.Coupon(t, db, model.Coupon{Code: "MULTI", Kind: model.KindAmount, Amount: dbtest.Amount("1")})
	ledger := NewLedger(db, NewEvaluator(time.UTC))
	ctx := context.Background()

	_, err := ledger.RedeemCode(ctx, RedeemRequest{Code: "MULTI", SaleID: "sale-1"})
	require.NoError(t, err)

	_, err = ledger.RedeemCode(ctx, RedeemRequest{Code: "MULTI", SaleID: "sale-1"})
	assert.Equal(t, apperr.AlreadyUsed, apperr.ReasonOf(err))

	c, err := repository.NewCouponRepository().GetByCode(ctx, db, "MULTI")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UsedCount, "rejected redemption must roll back its increment")
}

func TestClassifyLostRace(t *testing.T) {
	now := time.Now()

	err := classifyLostRace(&model.Coupon{Status: model.StatusUsed}, now)
	assert.Equal(t, apperr.AlreadyUsed, apperr.ReasonOf(err))

	err = classifyLostRace(&model.Coupon{Status: model.StatusActive, ExpiresAt: model.MillisOf(now.Add(-time.Second))}, now)
	assert.Equal(t, apperr.Expired, apperr.ReasonOf(err))

	err = classifyLostRace(&model.Coupon{Status: model.StatusDisabled}, now)
	assert.Equal(t, apperr.InvalidState, apperr.ReasonOf(err))
}
