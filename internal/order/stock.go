package order

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// StockReserver checks and takes store stock for whole orders.
type StockReserver struct {
	stock *repository.StockRepository
	now   func() time.Time
}

// NewStockReserver creates a stock reserver
func NewStockReserver() *StockReserver {
	return &StockReserver{
		stock: repository.NewStockRepository(),
		now:   time.Now,
	}
}

func quantities(lines model.LineItems) map[string]int64 {
	q := make(map[string]int64, len(lines))
	for _, l := range lines {
		q[l.PizzaID] += int64(l.Quantity)
	}
	return q
}

func sortedIDs(q map[string]int64) []string {
	ids := make([]string, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func insufficient(short []string) error {
	return apperr.Conflict(apperr.InsufficientStock, "not enough stock").
		WithDetail("pizzas", strings.Join(short, ","))
}

// Check reports insufficient_stock listing every short pizza. It takes
// nothing; stock may still change before Reserve.
func (r *StockReserver) Check(ctx context.Context, db repository.DBExecutor, storeID string, lines model.LineItems) error {
	q := quantities(lines)

	var short []string
	for _, id := range sortedIDs(q) {
		row, err := r.stock.Get(ctx, db, storeID, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				short = append(short, id)
				continue
			}
			return apperr.Wrap("stock.check", err)
		}
		if !row.Active || row.Stock < q[id] {
			short = append(short, id)
		}
	}
	if len(short) > 0 {
		return insufficient(short)
	}
	return nil
}

// Reserve takes stock for every line inside tx. Any short row fails the
// whole call, and the caller's rollback undoes the rows already taken.
func (r *StockReserver) Reserve(ctx context.Context, tx repository.DBExecutor, storeID string, lines model.LineItems) error {
	if err := r.Check(ctx, tx, storeID, lines); err != nil {
		return err
	}

	q := quantities(lines)
	now := r.now()
	for _, id := range sortedIDs(q) {
		ok, err := r.stock.Decrement(ctx, tx, storeID, id, q[id], now)
		if err != nil {
			return apperr.Wrap("stock.decrement", err)
		}
		if !ok {
			// changed between check and decrement
			return insufficient([]string{id})
		}
	}
	return nil
}

// Release returns the stock of lines to the store.
func (r *StockReserver) Release(ctx context.Context, tx repository.DBExecutor, storeID string, lines model.LineItems) error {
	q := quantities(lines)
	now := r.now()
	for _, id := range sortedIDs(q) {
		ok, err := r.stock.Increment(ctx, tx, storeID, id, q[id], now)
		if err != nil {
			return apperr.Wrap("stock.release", err)
		}
		if !ok {
			return apperr.NotFoundf("no stock row for " + id)
		}
	}
	return nil
}
