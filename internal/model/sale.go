package model

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleAwaitingPayment SaleStatus = "AWAITING_PAYMENT"
	SalePaid            SaleStatus = "PAID"
	SaleCancelled       SaleStatus = "CANCELLED"
)

type ExtraKind string

const (
	ExtraFee    ExtraKind = "FEE"
	ExtraCoupon ExtraKind = "COUPON"
)

// Extra is a signed amount attached to a line or to the whole order.
type Extra struct {
	Code       string          `json:"code"`
	Label      string          `json:"label"`
	Kind       ExtraKind       `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Chargeable bool            `json:"chargeable"`
	// Set on the coupon line only.
	DiscountValue decimal.NullDecimal `json:"discountValue,omitempty"`
}

// LineItem is a priced, immutable order line.
type LineItem struct {
	PizzaID   string          `json:"pizzaId"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Extras    []Extra         `json:"extras,omitempty"`
	Total     decimal.Decimal `json:"total"`
}

// LineItems is stored as a JSON document.
type LineItems []LineItem

// Scan implements sql.Scanner.
func (l *LineItems) Scan(src any) error { return scanJSON(src, l) }

// Value implements driver.Valuer.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		l = LineItems{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// Extras is stored as a JSON document.
type Extras []Extra

// Scan implements sql.Scanner.
func (e *Extras) Scan(src any) error { return scanJSON(src, e) }

// Value implements driver.Valuer.
func (e Extras) Value() (driver.Value, error) {
	if e == nil {
		e = Extras{}
	}
	b, err := json.Marshal(e)
	return string(b), err
}

// CouponLine returns the synthetic coupon discount line, if any.
func (e Extras) CouponLine() (Extra, bool) {
	for _, x := range e {
		if x.Kind == ExtraCoupon {
			return x, true
		}
	}
	return Extra{}, false
}

// Sale is an order, created unpaid or materialized at payment time.
type Sale struct {
	ID                      string          `db:"id"`
	Code                    string          `db:"code"`
	StoreID                 string          `db:"store_id"`
	CustomerID              sql.NullString  `db:"customer_id"`
	CustomerName            sql.NullString  `db:"customer_name"`
	CustomerPhone           sql.NullString  `db:"customer_phone"`
	CustomerSegment         sql.NullString  `db:"customer_segment"`
	Status                  SaleStatus      `db:"status"`
	Products                LineItems       `db:"products"`
	Extras                  Extras          `db:"extras"`
	TotalProducts           decimal.Decimal `db:"total_products"`
	Discounts               decimal.Decimal `db:"discounts"`
	Total                   decimal.Decimal `db:"total"`
	CouponCode              sql.NullString  `db:"coupon_code"`
	StripeCheckoutSessionID sql.NullString  `db:"stripe_checkout_session_id"`
	StripePaymentIntentID   sql.NullString  `db:"stripe_payment_intent_id"`
	CreatedAt               UnixMillis      `db:"created_at"`
	UpdatedAt               UnixMillis      `db:"updated_at"`
	PaidAt                  UnixMillis      `db:"paid_at"`
}
