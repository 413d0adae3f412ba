package order

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
)

func seedCatalog(t *testing.T) *sqlx.DB {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.Store(t, db, "s1")
	dbtest.Pizza(t, db, "margherita", "Margherita", map[string]string{"M": "12.00", "L": "15.00"})
	dbtest.Pizza(t, db, "pepperoni", "Pepperoni", map[string]string{"M": "10.00"})
	dbtest.Stock(t, db, "s1", "margherita", 20)
	dbtest.Stock(t, db, "s1", "pepperoni", 20)
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func boolPtr(b bool) *bool {
	return &b
}
