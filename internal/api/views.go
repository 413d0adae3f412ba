package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/notify"
)

type couponView struct {
	Code      string              `json:"code"`
	Kind      model.CouponKind    `json:"kind"`
	Variant   model.CouponVariant `json:"variant"`
	Percent   *decimal.Decimal    `json:"percent,omitempty"`
	Amount    *decimal.Decimal    `json:"amount,omitempty"`
	MaxAmount *decimal.Decimal    `json:"maxAmount,omitempty"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
}

func newCouponView(c *model.Coupon) couponView {
	return couponView{
		Code:      c.Code,
		Kind:      c.Kind,
		Variant:   c.Variant,
		Percent:   decimalPtr(c.Percent),
		Amount:    decimalPtr(c.Amount),
		MaxAmount: decimalPtr(c.MaxAmount),
		ExpiresAt: c.ExpiresAt.Ptr(),
	}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

type saleView struct {
	ID            string           `json:"id"`
	Code          string           `json:"code"`
	StoreID       string           `json:"storeId"`
	Status        model.SaleStatus `json:"status"`
	Products      model.LineItems  `json:"products"`
	Extras        model.Extras     `json:"extras"`
	TotalProducts decimal.Decimal  `json:"totalProducts"`
	Discounts     decimal.Decimal  `json:"discounts"`
	Total         decimal.Decimal  `json:"total"`
	Coupon        string           `json:"coupon,omitempty"`
	CustomerName  string           `json:"customerName,omitempty"`
	CheckoutID    string           `json:"checkoutSessionId,omitempty"`
	CreatedAt     *time.Time       `json:"createdAt,omitempty"`
	PaidAt        *time.Time       `json:"paidAt,omitempty"`
}

func newSaleView(s *model.Sale) saleView {
	return saleView{
		ID:            s.ID,
		Code:          s.Code,
		StoreID:       s.StoreID,
		Status:        s.Status,
		Products:      s.Products,
		Extras:        s.Extras,
		TotalProducts: s.TotalProducts,
		Discounts:     s.Discounts,
		Total:         s.Total,
		Coupon:        s.CouponCode.String,
		CustomerName:  s.CustomerName.String,
		CheckoutID:    s.StripeCheckoutSessionID.String,
		CreatedAt:     s.CreatedAt.Ptr(),
		PaidAt:        s.PaidAt.Ptr(),
	}
}

type issueResponse struct {
	OK           bool            `json:"ok"`
	Coupon       couponView      `json:"coupon"`
	Notification []notify.Result `json:"notifications,omitempty"`
}
