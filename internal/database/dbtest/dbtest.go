// Package dbtest opens throwaway SQLite databases with the service schema
// applied, for storage-backed tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// Open returns a migrated database in t's temp dir, closed on cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "pizzeria.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

// Store inserts an active store.
func Store(t testing.TB, db *sqlx.DB, id string) {
	t.Helper()
	err := repository.NewCatalogRepository().UpsertStore(context.Background(), db, model.Store{
		ID: id, Name: "Store " + id, Active: true,
	})
	require.NoError(t, err)
}

// Pizza inserts an active pizza with one price per size.
func Pizza(t testing.TB, db *sqlx.DB, id, name string, prices map[string]string) {
	t.Helper()
	ctx := context.Background()
	catalog := repository.NewCatalogRepository()

	require.NoError(t, catalog.UpsertPizza(ctx, db, model.Pizza{ID: id, Name: name, Active: true}))
	for size, price := range prices {
		require.NoError(t, catalog.UpsertPrice(ctx, db, model.PizzaPrice{
			PizzaID: id, Size: size, Price: decimal.RequireFromString(price),
		}))
	}
}

// Stock sets the stock of a pizza in a store.
func Stock(t testing.TB, db *sqlx.DB, storeID, pizzaID string, qty int64) {
	t.Helper()
	err := repository.NewStockRepository().Upsert(context.Background(), db, model.StorePizzaStock{
		StoreID: storeID, PizzaID: pizzaID, Stock: qty, Active: true,
		UpdatedAt: model.MillisOf(time.Now()),
	})
	require.NoError(t, err)
}

// StockLevel reads the current stock of a pizza in a store.
func StockLevel(t testing.TB, db *sqlx.DB, storeID, pizzaID string) int64 {
	t.Helper()
	row, err := repository.NewStockRepository().Get(context.Background(), db, storeID, pizzaID)
	require.NoError(t, err)
	return row.Stock
}

// Coupon inserts c after filling id, status, visibility and timestamps when
// left empty, and returns the stored row.
func Coupon(t testing.TB, db *sqlx.DB, c model.Coupon) *model.Coupon {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewCouponRepository()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Variant == "" {
		c.Variant = model.VariantFixed
	}
	if c.Status == "" {
		c.Status = model.StatusActive
	}
	if c.Visibility == "" {
		c.Visibility = model.VisibilityPublic
	}
	if !c.CreatedAt.Valid {
		c.CreatedAt = model.MillisOf(time.Now())
	}
	if !c.UpdatedAt.Valid {
		c.UpdatedAt = c.CreatedAt
	}

	require.NoError(t, repo.CreateBatch(ctx, db, []model.Coupon{c}))

	stored, err := repo.GetByCode(ctx, db, c.Code)
	require.NoError(t, err)
	return stored
}

// Amount is a valid decimal for coupon money fields.
func Amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
