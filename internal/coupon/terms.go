package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Terms is the discount a coupon grants on one order, as applied.
type Terms struct {
	Kind      model.CouponKind
	Variant   model.CouponVariant
	Percent   decimal.NullDecimal
	Amount    decimal.NullDecimal
	MaxAmount decimal.NullDecimal
}

// ResolveTerms fixes the discount terms of c. RANGE coupons use the percent
// drawn at allocation; unallocated ones accept a requested value inside
// their range and fall back to the lower bound.
func ResolveTerms(c *model.Coupon, requested decimal.NullDecimal) (Terms, error) {
	t := Terms{Kind: c.Kind, Variant: c.Variant, MaxAmount: c.MaxAmount}

	switch c.Kind {
	case model.KindAmount:
		if !c.Amount.Valid || !c.Amount.Decimal.IsPositive() {
			return Terms{}, apperr.Conflict(apperr.InvalidState, "amount coupon without amount")
		}
		t.Amount = c.Amount
		return t, nil

	case model.KindPercent:
		if c.Variant == model.VariantRange && !c.Percent.Valid {
			if !c.PercentMin.Valid || !c.PercentMax.Valid {
				return Terms{}, apperr.Conflict(apperr.InvalidState, "range coupon without bounds")
			}
			t.Percent = c.PercentMin
			if requested.Valid {
				v := requested.Decimal
				if v.LessThan(c.PercentMin.Decimal) || v.GreaterThan(c.PercentMax.Decimal) {
					return Terms{}, apperr.Validation(apperr.BadRange, "discount value outside coupon range").
						WithDetail("min", c.PercentMin.Decimal.String()).
						WithDetail("max", c.PercentMax.Decimal.String())
				}
				t.Percent = requested
			}
			return t, nil
		}
		if !c.Percent.Valid || !c.Percent.Decimal.IsPositive() {
			return Terms{}, apperr.Conflict(apperr.InvalidState, "percent coupon without percent")
		}
		t.Percent = c.Percent
		return t, nil
	}

	return Terms{}, apperr.Conflict(apperr.InvalidState, "unknown coupon kind "+string(c.Kind))
}

// Discount returns the money deducted from subtotal, never more than the
// subtotal itself, rounded to cents.
func (t Terms) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch t.Kind {
	case model.KindAmount:
		d = t.Amount.Decimal
	case model.KindPercent:
		d = subtotal.Mul(t.Percent.Decimal).Div(hundred)
		if t.MaxAmount.Valid && d.GreaterThan(t.MaxAmount.Decimal) {
			d = t.MaxAmount.Decimal
		}
	}

	d = decimal.Min(d, subtotal)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// Value is the percent or amount the terms carry, shown on the coupon line.
func (t Terms) Value() decimal.Decimal {
	if t.Kind == model.KindPercent {
		return t.Percent.Decimal
	}
	return t.Amount.Decimal
}
