package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   model.Coupon
		subtotal string
		want     string
	}{
		{"amount below subtotal", model.Coupon{Kind: model.KindAmount, Amount: nd("5.00")}, "12.00", "5"},
		{"amount capped by subtotal", model.Coupon{Kind: model.KindAmount, Amount: nd("15")}, "12.00", "12"},
		{"percent capped by max amount", model.Coupon{Kind: model.KindPercent, Percent: nd("20"), MaxAmount: nd("3.00")}, "20.00", "3"},
		{"percent uncapped", model.Coupon{Kind: model.KindPercent, Percent: nd("20")}, "20.00", "4"},
		{"percent rounds to cents", model.Coupon{Kind: model.KindPercent, Percent: nd("15")}, "9.99", "1.5"},
		{"empty subtotal", model.Coupon{Kind: model.KindAmount, Amount: nd("5")}, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms, err := ResolveTerms(&tt.coupon, decimal.NullDecimal{})
			require.NoError(t, err)
			got := terms.Discount(dec(tt.subtotal))
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}

func TestResolveTermsRange(t *testing.T) {
	c := &model.Coupon{
		Kind: model.KindPercent, Variant: model.VariantRange,
		PercentMin: nd("10"), PercentMax: nd("30"),
	}

	terms, err := ResolveTerms(c, decimal.NullDecimal{})
	require.NoError(t, err)
	assert.True(t, terms.Percent.Decimal.Equal(dec("10")))

	terms, err = ResolveTerms(c, nd("25"))
	require.NoError(t, err)
	assert.True(t, terms.Value().Equal(dec("25")))

	_, err = ResolveTerms(c, nd("31"))
	assert.Equal(t, apperr.BadRange, apperr.ReasonOf(err))

	// the percent drawn at allocation wins over the caller
	c.Percent = nd("17")
	terms, err = ResolveTerms(c, nd("25"))
	require.NoError(t, err)
	assert.True(t, terms.Percent.Decimal.Equal(dec("17")))
}

func TestResolveTermsRejectsIncompleteCoupons(t *testing.T) {
	_, err := ResolveTerms(&model.Coupon{Kind: model.KindAmount}, decimal.NullDecimal{})
	assert.Equal(t, apperr.InvalidState, apperr.ReasonOf(err))

	_, err = ResolveTerms(&model.Coupon{Kind: model.KindPercent, Variant: model.VariantFixed}, decimal.NullDecimal{})
	assert.Equal(t, apperr.InvalidState, apperr.ReasonOf(err))
}
