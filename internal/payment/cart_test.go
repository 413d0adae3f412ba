package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/order"
)

func TestCartSurvivesChunking(t *testing.T) {
	req := order.OrderRequest{
		StoreID:  "s1",
		Customer: &order.Customer{Name: "Lucía Ñúñez", Phone: "600111222"},
		Coupon:   "TWENTY",
	}
	for i := 0; i < 30; i++ {
		req.Items = append(req.Items, order.ItemRequest{
			PizzaID:  "margherita",
			Size:     "M",
			Quantity: i%3 + 1,
			Extras:   []order.ExtraRequest{{Code: "extra-cheese", Label: "Queso extra ñ", Amount: dec("1.50")}},
		})
	}

	meta := map[string]string{MetaSaleCode: "unrelated"}
	require.NoError(t, EncodeCart(req, meta))
	assert.NotEqual(t, "1", meta[MetaCartChunks], "fixture should need several chunks")
	for k, v := range meta {
		if strings.HasPrefix(k, metaCartPrefix) && k != MetaCartChunks {
			assert.LessOrEqual(t, len([]rune(v)), cartChunkSize)
		}
	}

	back, err := DecodeCart(meta)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, req.StoreID, back.StoreID)
	assert.Equal(t, req.Customer.Name, back.Customer.Name)
	require.Len(t, back.Items, 30)
	assert.True(t, back.Items[29].Extras[0].Amount.Equal(dec("1.5")))
}

func TestCartTooLarge(t *testing.T) {
	req := order.OrderRequest{StoreID: "s1"}
	for i := 0; i < 2000; i++ {
		req.Items = append(req.Items, order.ItemRequest{PizzaID: "margherita", Size: "M", Quantity: 1})
	}
	err := EncodeCart(req, map[string]string{})
	assert.Equal(t, apperr.CartTooLarge, apperr.ReasonOf(err))
}

func TestDecodeCartMissingPieces(t *testing.T) {
	back, err := DecodeCart(map[string]string{MetaSaleID: "x"})
	require.NoError(t, err)
	assert.Nil(t, back)

	_, err = DecodeCart(map[string]string{MetaCartChunks: "2", "cart_0": `{"storeId":`})
	assert.Equal(t, apperr.MissingCart, apperr.ReasonOf(err))

	_, err = DecodeCart(map[string]string{"cart_0": `{not json`})
	assert.Equal(t, apperr.MissingCart, apperr.ReasonOf(err))
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(1950), Cents(dec("19.50")))
	assert.Equal(t, int64(1), Cents(dec("0.005")))
	assert.Equal(t, int64(0), Cents(dec("0")))
}
