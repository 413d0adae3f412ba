package repository

import (
	"context"
	"fmt"

	"github.com/kkkkikiki/pizzeria/internal/model"
)

// RedemptionRepository stores the append-only redemption history
type RedemptionRepository struct{}

// NewRedemptionRepository creates a new redemption repository
func NewRedemptionRepository() *RedemptionRepository {
	return &RedemptionRepository{}
}

// Insert records one consumed use. A second record for the same coupon and
// sale returns ErrDuplicate.
func (r *RedemptionRepository) Insert(ctx context.Context, db DBExecutor, red *model.CouponRedemption) error {
	query := db.Rebind(`
		INSERT INTO coupon_redemptions
			(id, coupon_id, code, sale_id, customer_id, store_id, kind, variant, percent, amount, discount, redeemed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := db.ExecContext(ctx, query,
		red.ID, red.CouponID, red.Code, red.SaleID, red.CustomerID, red.StoreID,
		string(red.Kind), string(red.Variant), red.Percent, red.Amount, red.Discount, red.RedeemedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert redemption: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	return nil
}

// ListByCoupon returns the redemptions of one coupon, oldest first
func (r *RedemptionRepository) ListByCoupon(ctx context.Context, db DBExecutor, couponID string) ([]model.CouponRedemption, error) {
	query := db.Rebind(`
		SELECT id, coupon_id, code, sale_id, customer_id, store_id, kind, variant, percent, amount, discount, redeemed_at
		FROM coupon_redemptions
		WHERE coupon_id = ?
		ORDER BY redeemed_at ASC, id ASC
	`)

	var rows []model.CouponRedemption
	if err := db.SelectContext(ctx, &rows, query, couponID); err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	return rows, nil
}
