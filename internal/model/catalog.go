package model

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Store is a physical shop that owns its own stock.
type Store struct {
	ID     string         `db:"id" json:"id"`
	Name   string         `db:"name" json:"name"`
	Phone  sql.NullString `db:"phone" json:"-"`
	Active bool           `db:"active" json:"active"`
}

// Pizza is a catalog product.
type Pizza struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// PizzaPrice is the price of a pizza in one size.
type PizzaPrice struct {
	PizzaID string          `db:"pizza_id" json:"pizzaId"`
	Size    string          `db:"size" json:"size"`
	Price   decimal.Decimal `db:"price" json:"price"`
}

// StorePizzaStock is the per-store inventory of one pizza. Stock never goes
// below zero.
type StorePizzaStock struct {
	StoreID   string     `db:"store_id" json:"storeId"`
	PizzaID   string     `db:"pizza_id" json:"pizzaId"`
	Stock     int64      `db:"stock" json:"stock"`
	Active    bool       `db:"active" json:"active"`
	UpdatedAt UnixMillis `db:"updated_at" json:"updatedAt"`
}
