package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/pizzeria/internal/model"
)

const saleColumns = `id, code, store_id, customer_id, customer_name, customer_phone, customer_segment,
	status, products, extras, total_products, discounts, total, coupon_code,
	stripe_checkout_session_id, stripe_payment_intent_id, created_at, updated_at, paid_at`

// SaleRepository handles sale data operations
type SaleRepository struct{}

// NewSaleRepository creates a new sale repository
func NewSaleRepository() *SaleRepository {
	return &SaleRepository{}
}

// Create inserts a sale. A clash on code or checkout session returns ErrDuplicate.
func (r *SaleRepository) Create(ctx context.Context, db DBExecutor, s *model.Sale) error {
	query := db.Rebind(`
		INSERT INTO sales (` + saleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := db.ExecContext(ctx, query,
		s.ID, s.Code, s.StoreID, s.CustomerID, s.CustomerName, s.CustomerPhone, s.CustomerSegment,
		string(s.Status), s.Products, s.Extras, s.TotalProducts, s.Discounts, s.Total, s.CouponCode,
		s.StripeCheckoutSessionID, s.StripePaymentIntentID, s.CreatedAt, s.UpdatedAt, s.PaidAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create sale: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

// GetByID retrieves a sale by id
func (r *SaleRepository) GetByID(ctx context.Context, db DBExecutor, id string) (*model.Sale, error) {
	return r.getBy(ctx, db, "id", id)
}

// GetByCode retrieves a sale by its public order code
func (r *SaleRepository) GetByCode(ctx context.Context, db DBExecutor, code string) (*model.Sale, error) {
	return r.getBy(ctx, db, "code", code)
}

// GetByCheckoutSession retrieves the sale bound to a Stripe checkout session
func (r *SaleRepository) GetByCheckoutSession(ctx context.Context, db DBExecutor, sessionID string) (*model.Sale, error) {
	return r.getBy(ctx, db, "stripe_checkout_session_id", sessionID)
}

func (r *SaleRepository) getBy(ctx context.Context, db DBExecutor, column, value string) (*model.Sale, error) {
	query := db.Rebind(`SELECT ` + saleColumns + ` FROM sales WHERE ` + column + ` = ?`)

	var s model.Sale
	if err := db.GetContext(ctx, &s, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return &s, nil
}

// AttachCheckoutSession binds a checkout session to an unpaid sale. It
// returns false when the sale is no longer awaiting payment.
func (r *SaleRepository) AttachCheckoutSession(ctx context.Context, db DBExecutor, saleID, sessionID string, now time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE sales SET stripe_checkout_session_id = ?, updated_at = ?
		WHERE id = ? AND status = 'AWAITING_PAYMENT'
	`)

	result, err := db.ExecContext(ctx, query, sessionID, now.UnixMilli(), saleID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("failed to attach checkout session: %w", ErrDuplicate)
		}
		return false, fmt.Errorf("failed to attach checkout session: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkPaid moves an unpaid sale to PAID. It returns false when another
// confirmation already did so.
func (r *SaleRepository) MarkPaid(ctx context.Context, db DBExecutor, saleID, sessionID, paymentIntentID string, now time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE sales SET
			status = 'PAID',
			stripe_checkout_session_id = COALESCE(?, stripe_checkout_session_id),
			stripe_payment_intent_id = COALESCE(?, stripe_payment_intent_id),
			paid_at = ?,
			updated_at = ?
		WHERE id = ? AND status = 'AWAITING_PAYMENT'
	`)

	result, err := db.ExecContext(ctx, query,
		nullString(sessionID), nullString(paymentIntentID), now.UnixMilli(), now.UnixMilli(), saleID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("failed to mark sale paid: %w", ErrDuplicate)
		}
		return false, fmt.Errorf("failed to mark sale paid: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Transition moves a sale from one status to another. It returns false when
// the sale was no longer in from.
func (r *SaleRepository) Transition(ctx context.Context, db DBExecutor, saleID string, from, to model.SaleStatus, now time.Time) (bool, error) {
	query := db.Rebind(`UPDATE sales SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)

	result, err := db.ExecContext(ctx, query, string(to), now.UnixMilli(), saleID, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update sale status: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
