package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kkkkikiki/pizzeria/internal/model"
)

// CatalogRepository reads stores, pizzas and prices
type CatalogRepository struct{}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

// GetStore retrieves a store by id
func (r *CatalogRepository) GetStore(ctx context.Context, db DBExecutor, id string) (*model.Store, error) {
	query := db.Rebind(`SELECT id, name, phone, active FROM stores WHERE id = ?`)

	var s model.Store
	if err := db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return &s, nil
}

// FindPizza resolves a pizza by id, falling back to a case-insensitive name match
func (r *CatalogRepository) FindPizza(ctx context.Context, db DBExecutor, idOrName string) (*model.Pizza, error) {
	var p model.Pizza

	err := db.GetContext(ctx, &p, db.Rebind(`SELECT id, name, active FROM pizzas WHERE id = ?`), idOrName)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get pizza: %w", err)
	}

	err = db.GetContext(ctx, &p,
		db.Rebind(`SELECT id, name, active FROM pizzas WHERE LOWER(name) = ?`),
		strings.ToLower(strings.TrimSpace(idOrName)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pizza: %w", err)
	}
	return &p, nil
}

// GetPrice retrieves the price of a pizza in one size
func (r *CatalogRepository) GetPrice(ctx context.Context, db DBExecutor, pizzaID, size string) (*model.PizzaPrice, error) {
	query := db.Rebind(`SELECT pizza_id, size, price FROM pizza_prices WHERE pizza_id = ? AND size = ?`)

	var p model.PizzaPrice
	if err := db.GetContext(ctx, &p, query, pizzaID, size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return &p, nil
}

// UpsertStore creates or renames a store
func (r *CatalogRepository) UpsertStore(ctx context.Context, db DBExecutor, s model.Store) error {
	query := db.Rebind(`
		INSERT INTO stores (id, name, phone, active) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, phone = excluded.phone, active = excluded.active
	`)
	if _, err := db.ExecContext(ctx, query, s.ID, s.Name, s.Phone, s.Active); err != nil {
		return fmt.Errorf("failed to upsert store: %w", err)
	}
	return nil
}

// UpsertPizza creates or renames a pizza
func (r *CatalogRepository) UpsertPizza(ctx context.Context, db DBExecutor, p model.Pizza) error {
	query := db.Rebind(`
		INSERT INTO pizzas (id, name, active) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, active = excluded.active
	`)
	if _, err := db.ExecContext(ctx, query, p.ID, p.Name, p.Active); err != nil {
		return fmt.Errorf("failed to upsert pizza: %w", err)
	}
	return nil
}

// UpsertPrice sets the price of a pizza size
func (r *CatalogRepository) UpsertPrice(ctx context.Context, db DBExecutor, p model.PizzaPrice) error {
	query := db.Rebind(`
		INSERT INTO pizza_prices (pizza_id, size, price) VALUES (?, ?, ?)
		ON CONFLICT (pizza_id, size) DO UPDATE SET price = excluded.price
	`)
	if _, err := db.ExecContext(ctx, query, p.PizzaID, p.Size, p.Price); err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}
	return nil
}
