package order

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
	"github.com/kkkkikiki/pizzeria/internal/model"
)

func TestAssembleAmountCoupon(t *testing.T) {
	db := seedCatalog(t)
	dbtest.Coupon(t, db, model.Coupon{
		Code: "FIVE", Kind: model.KindAmount, Amount: dbtest.Amount("5.00"),
		UsageLimit: sql.NullInt64{Int64: 1, Valid: true},
	})

	asm, err := NewAssembler(coupon.NewEvaluator(time.UTC)).Assemble(context.Background(), db, OrderRequest{
		StoreID: "s1",
		Items:   []ItemRequest{{PizzaID: "margherita", Size: "M", Quantity: 1}},
		Extras:  []ExtraRequest{{Code: "delivery", Amount: dec("2.50")}},
		Coupon:  "FIVE",
	})
	require.NoError(t, err)

	assert.True(t, asm.TotalProducts.Equal(dec("12")))
	assert.True(t, asm.Discount.Equal(dec("5")))
	assert.True(t, asm.Total.Equal(dec("9.50")), "7.00 + 2.50 delivery, got %s", asm.Total)

	line, ok := asm.Extras.CouponLine()
	require.True(t, ok)
	assert.False(t, line.Chargeable)
	assert.True(t, line.Amount.Equal(dec("-5")))
	assert.True(t, line.DiscountValue.Decimal.Equal(dec("5")))
}

func TestAssemblePercentCouponCapped(t *testing.T) {
	db := seedCatalog(t)
	dbtest.Coupon(t, db, model.Coupon{
		Code: "TWENTY", Kind: model.KindPercent, Percent: dbtest.Amount("20"), MaxAmount: dbtest.Amount("3.00"),
	})

	asm, err := NewAssembler(coupon.NewEvaluator(time.UTC)).Assemble(context.Background(), db, OrderRequest{
		StoreID: "s1",
		Items:   []ItemRequest{{Name: "pepperoni", Size: "M", Quantity: 2}},
		Coupon:  "TWENTY",
	})
	require.NoError(t, err)

	assert.True(t, asm.TotalProducts.Equal(dec("20")))
	assert.True(t, asm.Discount.Equal(dec("3")))
	assert.True(t, asm.Total.Equal(dec("17")))
	assert.Equal(t, "pepperoni", asm.Lines[0].PizzaID, "name resolves to the catalog id")
}

func TestAssembleNeverDiscountsFees(t *testing.T) {
	db := seedCatalog(t)
	dbtest.Coupon(t, db, model.Coupon{Code: "BIG", Kind: model.KindAmount, Amount: dbtest.Amount("50")})

	asm, err := NewAssembler(coupon.NewEvaluator(time.UTC)).Assemble(context.Background(), db, OrderRequest{
		StoreID: "s1",
		Items: []ItemRequest{{
			PizzaID: "margherita", Size: "L", Quantity: 2,
			Extras: []ExtraRequest{{Code: "cheese", Amount: dec("1.00")}},
		}},
		Extras: []ExtraRequest{
			{Code: "delivery", Amount: dec("3")},
			{Code: "tip-note", Amount: dec("1"), Chargeable: boolPtr(false)},
		},
		Coupon: "BIG",
	})
	require.NoError(t, err)

	assert.True(t, asm.Lines[0].Total.Equal(dec("32")), "(15 + 1) x 2")
	assert.True(t, asm.Discount.Equal(dec("32")), "capped by the product subtotal")
	assert.True(t, asm.Total.Equal(dec("3")), "only the chargeable fee remains")
}

func TestAssembleRejections(t *testing.T) {
	db := seedCatalog(t)
	dbtest.Coupon(t, db, model.Coupon{Code: "VIPONLY", Kind: model.KindAmount, Amount: dbtest.Amount("1"), Segments: model.StringList{"vip"}})
	asm := NewAssembler(coupon.NewEvaluator(time.UTC))

	item := ItemRequest{PizzaID: "margherita", Size: "M", Quantity: 1}
	tests := []struct {
		name string
		req  OrderRequest
		want apperr.Reason
	}{
		{"empty cart", OrderRequest{StoreID: "s1"}, apperr.EmptyCart},
		{"unknown store", OrderRequest{StoreID: "nope", Items: []ItemRequest{item}}, apperr.UnknownStore},
		{"unknown product", OrderRequest{StoreID: "s1", Items: []ItemRequest{{PizzaID: "hawaii", Size: "M", Quantity: 1}}}, apperr.UnknownProduct},
		{"missing size", OrderRequest{StoreID: "s1", Items: []ItemRequest{{PizzaID: "margherita", Quantity: 1}}}, apperr.MissingSize},
		{"zero quantity", OrderRequest{StoreID: "s1", Items: []ItemRequest{{PizzaID: "margherita", Size: "M"}}}, apperr.BadQuantity},
		{"no price for size", OrderRequest{StoreID: "s1", Items: []ItemRequest{{PizzaID: "pepperoni", Size: "L", Quantity: 1}}}, apperr.NoPrice},
		{"extra without code", OrderRequest{StoreID: "s1", Items: []ItemRequest{item}, Extras: []ExtraRequest{{Amount: dec("1")}}}, apperr.BadExtra},
		{"negative total", OrderRequest{StoreID: "s1", Items: []ItemRequest{item}, Extras: []ExtraRequest{{Code: "promo", Amount: dec("-20")}}}, apperr.BadExtra},
		{"unknown coupon", OrderRequest{StoreID: "s1", Items: []ItemRequest{item}, Coupon: "MISSING"}, apperr.NotFound},
		{"segment coupon", OrderRequest{StoreID: "s1", Items: []ItemRequest{item}, Coupon: "VIPONLY"}, apperr.SegmentMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := asm.Assemble(context.Background(), db, tt.req)
			assert.Equal(t, tt.want, apperr.ReasonOf(err))
		})
	}
}
