package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/pizzeria/internal/model"
)

// StockRepository handles per-store pizza stock
type StockRepository struct{}

// NewStockRepository creates a new stock repository
func NewStockRepository() *StockRepository {
	return &StockRepository{}
}

// Get retrieves the stock row for one pizza in one store
func (r *StockRepository) Get(ctx context.Context, db DBExecutor, storeID, pizzaID string) (*model.StorePizzaStock, error) {
	query := db.Rebind(`
		SELECT store_id, pizza_id, stock, active, updated_at
		FROM store_pizza_stock
		WHERE store_id = ? AND pizza_id = ?
	`)

	var s model.StorePizzaStock
	if err := db.GetContext(ctx, &s, query, storeID, pizzaID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return &s, nil
}

// ListForStore returns every stock row of a store ordered by pizza id
func (r *StockRepository) ListForStore(ctx context.Context, db DBExecutor, storeID string) ([]model.StorePizzaStock, error) {
	query := db.Rebind(`
		SELECT store_id, pizza_id, stock, active, updated_at
		FROM store_pizza_stock
		WHERE store_id = ?
		ORDER BY pizza_id
	`)

	var rows []model.StorePizzaStock
	if err := db.SelectContext(ctx, &rows, query, storeID); err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	return rows, nil
}

// Decrement takes qty units if the row is active and holds enough stock.
// It returns false when the guard rejected the update.
func (r *StockRepository) Decrement(ctx context.Context, db DBExecutor, storeID, pizzaID string, qty int64, now time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE store_pizza_stock SET stock = stock - ?, updated_at = ?
		WHERE store_id = ? AND pizza_id = ? AND active = ? AND stock >= ?
	`)

	result, err := db.ExecContext(ctx, query, qty, now.UnixMilli(), storeID, pizzaID, true, qty)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Increment returns qty units to a stock row
func (r *StockRepository) Increment(ctx context.Context, db DBExecutor, storeID, pizzaID string, qty int64, now time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE store_pizza_stock SET stock = stock + ?, updated_at = ?
		WHERE store_id = ? AND pizza_id = ?
	`)

	result, err := db.ExecContext(ctx, query, qty, now.UnixMilli(), storeID, pizzaID)
	if err != nil {
		return false, fmt.Errorf("failed to increment stock: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Upsert sets the absolute stock level and active flag of a row
func (r *StockRepository) Upsert(ctx context.Context, db DBExecutor, s model.StorePizzaStock) error {
	query := db.Rebind(`
		INSERT INTO store_pizza_stock (store_id, pizza_id, stock, active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (store_id, pizza_id) DO UPDATE SET
			stock = excluded.stock,
			active = excluded.active,
			updated_at = excluded.updated_at
	`)

	if _, err := db.ExecContext(ctx, query, s.StoreID, s.PizzaID, s.Stock, s.Active, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert stock: %w", err)
	}
	return nil
}
