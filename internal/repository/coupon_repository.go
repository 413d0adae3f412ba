package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/model"
)

const couponColumns = `id, code, kind, variant, percent, percent_min, percent_max, amount, max_amount,
	usage_limit, used_count, status, assigned_to_id, claimed_at, visibility, acquisition, channel, game_id, campaign,
	active_from, expires_at, days_active, window_start, window_end, segments, created_at, updated_at`

const couponColumnCount = 27

// CouponRepository handles coupon data operations
type CouponRepository struct{}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{}
}

// PoolFilter selects the unclaimed coupons a claimant may receive. An empty
// GameID selects the generic claim pool, which never includes game prizes.
type PoolFilter struct {
	Kind       model.CouponKind
	Variant    model.CouponVariant
	Percent    decimal.NullDecimal
	Amount     decimal.NullDecimal
	CodePrefix string
	GameID     string
}

func (f PoolFilter) where(now time.Time) (string, []interface{}) {
	conds := []string{
		"claimed_at IS NULL",
		"assigned_to_id IS NULL",
		"status = 'ACTIVE'",
		"(expires_at IS NULL OR expires_at > ?)",
	}
	args := []interface{}{now.UnixMilli()}

	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Variant != "" {
		conds = append(conds, "variant = ?")
		args = append(args, string(f.Variant))
	}
	if f.Percent.Valid {
		conds = append(conds, "percent = ?")
		args = append(args, f.Percent.Decimal)
	}
	if f.Amount.Valid {
		conds = append(conds, "amount = ?")
		args = append(args, f.Amount.Decimal)
	}
	if f.CodePrefix != "" {
		conds = append(conds, "code LIKE ?")
		args = append(args, f.CodePrefix+"%")
	}
	if f.GameID != "" {
		conds = append(conds, "game_id = ?")
		args = append(args, f.GameID)
	} else {
		conds = append(conds, "game_id IS NULL", "(acquisition IS NULL OR acquisition <> ?)")
		args = append(args, model.AcquisitionGame)
	}
	return strings.Join(conds, " AND "), args
}

// Assignment is what a successful pool allocation writes onto the coupon.
// An empty AssigneeID leaves the coupon usable by whoever holds the code.
type Assignment struct {
	AssigneeID  string
	ExpiresAt   model.UnixMillis
	Acquisition string
	Channel     string
	// RangeDraw in [0,1) fixes the percent of RANGE coupons that have none.
	RangeDraw float64
}

// GetByCode retrieves a coupon by its code
func (r *CouponRepository) GetByCode(ctx context.Context, db DBExecutor, code string) (*model.Coupon, error) {
	query := db.Rebind(`SELECT ` + couponColumns + ` FROM coupons WHERE code = ?`)

	var c model.Coupon
	if err := db.GetContext(ctx, &c, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// GetByID retrieves a coupon by id
func (r *CouponRepository) GetByID(ctx context.Context, db DBExecutor, id string) (*model.Coupon, error) {
	query := db.Rebind(`SELECT ` + couponColumns + ` FROM coupons WHERE id = ?`)

	var c model.Coupon
	if err := db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// Allocate assigns one pool coupon matching f in a single guarded statement.
// ErrNotFound means no row was assigned: either the pool is empty or a
// concurrent claimant took the selected row first.
func (r *CouponRepository) Allocate(ctx context.Context, db DBExecutor, f PoolFilter, a Assignment, now time.Time) (*model.Coupon, error) {
	where, whereArgs := f.where(now)

	lock := ""
	if isPostgres(db) {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	query := db.Rebind(fmt.Sprintf(`
		UPDATE coupons SET
			assigned_to_id = ?,
			claimed_at = ?,
			expires_at = COALESCE(?, expires_at),
			acquisition = ?,
			channel = ?,
			visibility = 'RESERVED',
			percent = CASE
				WHEN variant = 'RANGE' AND percent IS NULL AND percent_min IS NOT NULL AND percent_max IS NOT NULL
				THEN ROUND(percent_min + (percent_max - percent_min) * ?, 0)
				ELSE percent END,
			updated_at = ?
		WHERE id = (
			SELECT id FROM coupons
			WHERE %s
			ORDER BY created_at, id
			LIMIT 1
			%s
		) AND claimed_at IS NULL AND assigned_to_id IS NULL AND status = 'ACTIVE'
		RETURNING %s`, where, lock, couponColumns))

	args := []interface{}{
		nullString(a.AssigneeID),
		now.UnixMilli(),
		a.ExpiresAt,
		nullString(a.Acquisition),
		nullString(a.Channel),
		a.RangeDraw,
		now.UnixMilli(),
	}
	args = append(args, whereArgs...)

	var c model.Coupon
	if err := db.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to allocate coupon: %w", err)
	}
	return &c, nil
}

// CountPool counts the coupons a claimant could still receive for f
func (r *CouponRepository) CountPool(ctx context.Context, db DBExecutor, f PoolFilter, now time.Time) (int64, error) {
	where, args := f.where(now)
	query := db.Rebind(`SELECT COUNT(*) FROM coupons WHERE ` + where)

	var n int64
	if err := db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count pool: %w", err)
	}
	return n, nil
}

// IncrementUsage consumes one use of the coupon, flipping it to USED when the
// limit is reached. It returns false when the guard rejected the update.
func (r *CouponRepository) IncrementUsage(ctx context.Context, db DBExecutor, couponID string, now time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE coupons SET
			used_count = used_count + 1,
			status = CASE
				WHEN usage_limit IS NOT NULL AND used_count + 1 >= usage_limit THEN 'USED'
				ELSE status END,
			updated_at = ?
		WHERE id = ?
			AND status = 'ACTIVE'
			AND (usage_limit IS NULL OR used_count < usage_limit)
			AND (expires_at IS NULL OR expires_at > ?)
	`)

	result, err := db.ExecContext(ctx, query, now.UnixMilli(), couponID, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Extend activates an ACTIVE coupon now (if it had no start) and moves its
// expiry. It returns false when the coupon is not ACTIVE.
func (r *CouponRepository) Extend(ctx context.Context, db DBExecutor, code string, expiresAt time.Time, now time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE coupons SET
			expires_at = ?,
			active_from = COALESCE(active_from, ?),
			updated_at = ?
		WHERE code = ? AND status = 'ACTIVE'
	`)

	result, err := db.ExecContext(ctx, query, expiresAt.UnixMilli(), now.UnixMilli(), now.UnixMilli(), code)
	if err != nil {
		return false, fmt.Errorf("failed to extend coupon: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ExpireSweep marks every ACTIVE coupon past its expiry as EXPIRED
func (r *CouponRepository) ExpireSweep(ctx context.Context, db DBExecutor, now time.Time) (int64, error) {
	query := db.Rebind(`
		UPDATE coupons SET status = 'EXPIRED', updated_at = ?
		WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at <= ?
	`)

	result, err := db.ExecContext(ctx, query, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to expire coupons: %w", err)
	}
	return rowsAffected(result)
}

// CreateBatch inserts coupons in batches within the caller's transaction
func (r *CouponRepository) CreateBatch(ctx context.Context, db DBExecutor, coupons []model.Coupon) error {
	// stays under the bind parameter limit of both drivers
	batchSize := 500

	for i := 0; i < len(coupons); i += batchSize {
		end := i + batchSize
		if end > len(coupons) {
			end = len(coupons)
		}

		if err := r.insertCouponBatch(ctx, db, coupons[i:end]); err != nil {
			return err
		}
	}

	return nil
}

// insertCouponBatch inserts a batch of coupons using a single query
func (r *CouponRepository) insertCouponBatch(ctx context.Context, db DBExecutor, coupons []model.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", couponColumnCount), ", ") + ")"
	valuesClause := make([]string, len(coupons))
	args := make([]interface{}, 0, len(coupons)*couponColumnCount)

	for i, c := range coupons {
		valuesClause[i] = row
		args = append(args,
			c.ID, c.Code, string(c.Kind), string(c.Variant),
			c.Percent, c.PercentMin, c.PercentMax, c.Amount, c.MaxAmount,
			c.UsageLimit, c.UsedCount, string(c.Status), c.AssignedToID, c.ClaimedAt, string(c.Visibility),
			c.Acquisition, c.Channel, c.GameID, c.Campaign,
			c.ActiveFrom, c.ExpiresAt, c.DaysActive, c.WindowStart, c.WindowEnd, c.Segments,
			c.CreatedAt, c.UpdatedAt,
		)
	}

	query := db.Rebind(fmt.Sprintf(`INSERT INTO coupons (%s) VALUES %s`,
		couponColumns, strings.Join(valuesClause, ", ")))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to execute batch insert: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
