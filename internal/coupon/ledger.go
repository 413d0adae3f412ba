package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// RedeemRequest consumes one use of Code.
type RedeemRequest struct {
	Code          string
	CustomerID    string
	Segment       string
	SaleID        string
	StoreID       string
	DiscountValue decimal.NullDecimal
	// Subtotal, when known, records the money actually deducted.
	Subtotal decimal.NullDecimal
}

// Ledger consumes coupon uses and records what was applied.
type Ledger struct {
	db          *sqlx.DB
	eval        *Evaluator
	coupons     *repository.CouponRepository
	redemptions *repository.RedemptionRepository
	now         func() time.Time
}

// NewLedger creates a ledger
func NewLedger(db *sqlx.DB, eval *Evaluator) *Ledger {
	return &Ledger{
		db:          db,
		eval:        eval,
		coupons:     repository.NewCouponRepository(),
		redemptions: repository.NewRedemptionRepository(),
		now:         time.Now,
	}
}

// RedeemCode runs Redeem in its own transaction.
func (l *Ledger) RedeemCode(ctx context.Context, req RedeemRequest) (*model.CouponRedemption, error) {
	var red *model.CouponRedemption
	err := database.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var err error
		red, err = l.Redeem(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return red, nil
}

// Redeem consumes one use of the coupon inside tx. Eligibility is checked
// again on the row read in tx, the increment is guarded, and the snapshot
// is inserted in the same transaction.
func (l *Ledger) Redeem(ctx context.Context, tx repository.DBExecutor, req RedeemRequest) (*model.CouponRedemption, error) {
	now := l.now()

	c, err := l.coupons.GetByCode(ctx, tx, req.Code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap("redeem.load", err)
	}

	reason := l.eval.Evaluate(c, now, Subject{CustomerID: req.CustomerID, Segment: req.Segment})
	if reason != apperr.Valid {
		return nil, redeemRejection(reason)
	}

	terms, err := ResolveTerms(c, req.DiscountValue)
	if err != nil {
		return nil, err
	}

	ok, err := l.coupons.IncrementUsage(ctx, tx, c.ID, now)
	if err != nil {
		return nil, apperr.Wrap("redeem.increment", err)
	}
	if !ok {
		// lost the race; re-read to say why
		current, err := l.coupons.GetByID(ctx, tx, c.ID)
		if err != nil {
			return nil, apperr.Wrap("redeem.reread", err)
		}
		return nil, classifyLostRace(current, now)
	}

	red := &model.CouponRedemption{
		ID:         uuid.NewString(),
		CouponID:   c.ID,
		Code:       c.Code,
		SaleID:     nullString(req.SaleID),
		CustomerID: nullString(req.CustomerID),
		StoreID:    nullString(req.StoreID),
		Kind:       terms.Kind,
		Variant:    terms.Variant,
		Percent:    terms.Percent,
		Amount:     terms.Amount,
		RedeemedAt: model.MillisOf(now),
	}
	if req.Subtotal.Valid {
		red.Discount = decimal.NewNullDecimal(terms.Discount(req.Subtotal.Decimal))
	}

	if err := l.redemptions.Insert(ctx, tx, red); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.AlreadyUsed, "coupon already redeemed for this sale")
		}
		return nil, apperr.Wrap("redeem.snapshot", err)
	}
	return red, nil
}

// redeemRejection turns an eligibility reason into the error redeem returns.
func redeemRejection(reason apperr.Reason) error {
	switch reason {
	case apperr.NotFound:
		return apperr.NotFoundf("coupon not found")
	case apperr.Used:
		return apperr.Conflict(apperr.AlreadyUsed, "coupon already used")
	case apperr.Disabled:
		return apperr.Conflict(apperr.InvalidState, "coupon disabled")
	default:
		return apperr.Conflict(reason, "coupon not usable")
	}
}

// classifyLostRace explains why a guarded increment matched no row.
func classifyLostRace(c *model.Coupon, now time.Time) error {
	switch {
	case c.Status == model.StatusUsed || c.Exhausted():
		return apperr.Conflict(apperr.AlreadyUsed, "coupon already used")
	case c.Status == model.StatusExpired || (c.ExpiresAt.Valid && !now.Before(c.ExpiresAt.Time)):
		return apperr.Conflict(apperr.Expired, "coupon expired")
	default:
		return apperr.Conflict(apperr.InvalidState, "coupon in state "+string(c.Status))
	}
}
