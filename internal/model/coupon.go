package model

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

type CouponKind string

const (
	KindAmount  CouponKind = "AMOUNT"
	KindPercent CouponKind = "PERCENT"
)

// Valid reports whether k is a known discount kind.
func (k CouponKind) Valid() bool {
	return k == KindAmount || k == KindPercent
}

type CouponVariant string

const (
	VariantFixed CouponVariant = "FIXED"
	VariantRange CouponVariant = "RANGE"
)

// Valid reports whether v is a known variant.
func (v CouponVariant) Valid() bool {
	return v == VariantFixed || v == VariantRange
}

type CouponStatus string

const (
	StatusActive   CouponStatus = "ACTIVE"
	StatusUsed     CouponStatus = "USED"
	StatusExpired  CouponStatus = "EXPIRED"
	StatusDisabled CouponStatus = "DISABLED"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityReserved Visibility = "RESERVED"
)

// AcquisitionGame tags coupons that belong to a game prize pool.
const AcquisitionGame = "GAME"

// Coupon represents a discount coupon in the database
type Coupon struct {
	ID           string              `db:"id"`
	Code         string              `db:"code"`
	Kind         CouponKind          `db:"kind"`
	Variant      CouponVariant       `db:"variant"`
	Percent      decimal.NullDecimal `db:"percent"`
	PercentMin   decimal.NullDecimal `db:"percent_min"`
	PercentMax   decimal.NullDecimal `db:"percent_max"`
	Amount       decimal.NullDecimal `db:"amount"`
	MaxAmount    decimal.NullDecimal `db:"max_amount"`
	UsageLimit   sql.NullInt64       `db:"usage_limit"`
	UsedCount    int64               `db:"used_count"`
	Status       CouponStatus        `db:"status"`
	AssignedToID sql.NullString      `db:"assigned_to_id"`
	ClaimedAt    UnixMillis          `db:"claimed_at"` // set once the coupon leaves the pool
	Visibility   Visibility          `db:"visibility"`
	Acquisition  sql.NullString      `db:"acquisition"`
	Channel      sql.NullString      `db:"channel"`
	GameID       sql.NullString      `db:"game_id"`
	Campaign     sql.NullString      `db:"campaign"`
	ActiveFrom   UnixMillis          `db:"active_from"`
	ExpiresAt    UnixMillis          `db:"expires_at"`
	DaysActive   IntList             `db:"days_active"`
	WindowStart  sql.NullInt64       `db:"window_start"`
	WindowEnd    sql.NullInt64       `db:"window_end"`
	Segments     StringList          `db:"segments"`
	CreatedAt    UnixMillis          `db:"created_at"`
	UpdatedAt    UnixMillis          `db:"updated_at"`
}

// Exhausted reports whether the usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit.Valid && c.UsedCount >= c.UsageLimit.Int64
}

// CouponRedemption is the immutable record of one consumed use of a coupon,
// holding the discount terms as they were applied.
type CouponRedemption struct {
	ID         string              `db:"id" json:"id"`
	CouponID   string              `db:"coupon_id" json:"couponId"`
	Code       string              `db:"code" json:"code"`
	SaleID     sql.NullString      `db:"sale_id" json:"-"`
	CustomerID sql.NullString      `db:"customer_id" json:"-"`
	StoreID    sql.NullString      `db:"store_id" json:"-"`
	Kind       CouponKind          `db:"kind" json:"kind"`
	Variant    CouponVariant       `db:"variant" json:"variant"`
	Percent    decimal.NullDecimal `db:"percent" json:"percent"`
	Amount     decimal.NullDecimal `db:"amount" json:"amount"`
	Discount   decimal.NullDecimal `db:"discount" json:"discount"`
	RedeemedAt UnixMillis          `db:"redeemed_at" json:"redeemedAt"`
}
