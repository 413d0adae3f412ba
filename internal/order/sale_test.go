package order

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

func newService(db *sqlx.DB) *Service {
	return NewService(db, NewAssembler(coupon.NewEvaluator(time.UTC)), NewStockReserver())
}

func TestNewSaleCode(t *testing.T) {
	code, err := NewSaleCode()
	require.NoError(t, err)
	assert.Regexp(t, `^P-[2-9A-HJ-NP-Z]{6}$`, code)
}

func TestPlaceCreatesAwaitingPaymentSale(t *testing.T) {
	db := seedCatalog(t)
	svc := newService(db)

	sale, err := svc.Place(context.Background(), OrderRequest{
		StoreID:  "s1",
		Items:    []ItemRequest{{PizzaID: "margherita", Size: "M", Quantity: 2}},
		Customer: &Customer{ID: "cust-1", Phone: "600111222"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SaleAwaitingPayment, sale.Status)
	assert.True(t, sale.Total.Equal(dec("24")))

	stored, err := svc.Get(context.Background(), sale.Code)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, stored.ID)
	assert.Len(t, stored.Products, 1)
	assert.Equal(t, "cust-1", stored.CustomerID.String)

	assert.Equal(t, int64(20), dbtest.StockLevel(t, db, "s1", "margherita"), "stock is taken at payment")
}

func TestPlaceRejectsShortStock(t *testing.T) {
	db := seedCatalog(t)
	dbtest.Stock(t, db, "s1", "pepperoni", 1)

	_, err := newService(db).Place(context.Background(), OrderRequest{
		StoreID: "s1",
		Items:   []ItemRequest{{PizzaID: "pepperoni", Size: "M", Quantity: 2}},
	})
	assert.Equal(t, apperr.InsufficientStock, apperr.ReasonOf(err))
}

func TestCancelPaidSaleReleasesStock(t *testing.T) {
	db := seedCatalog(t)
	svc := newService(db)
	ctx := context.Background()

	sale, err := svc.Place(ctx, OrderRequest{
		StoreID: "s1",
		Items:   []ItemRequest{{PizzaID: "pepperoni", Size: "M", Quantity: 5}},
	})
	require.NoError(t, err)

	require.NoError(t, database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := svc.stock.Reserve(ctx, tx, "s1", sale.Products); err != nil {
			return err
		}
		_, err := repository.NewSaleRepository().MarkPaid(ctx, tx, sale.ID, "", "", time.Now())
		return err
	}))
	assert.Equal(t, int64(15), dbtest.StockLevel(t, db, "s1", "pepperoni"))

	cancelled, err := svc.Cancel(ctx, sale.Code)
	require.NoError(t, err)
	assert.Equal(t, model.SaleCancelled, cancelled.Status)
	assert.Equal(t, int64(20), dbtest.StockLevel(t, db, "s1", "pepperoni"))

	again, err := svc.Cancel(ctx, sale.Code)
	require.NoError(t, err)
	assert.Equal(t, model.SaleCancelled, again.Status)
	assert.Equal(t, int64(20), dbtest.StockLevel(t, db, "s1", "pepperoni"))
}
