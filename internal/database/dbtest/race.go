package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"

	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// Racer wraps an executor and, right before a statement containing Match,
// runs Race on the wrapped executor. It stands in for a concurrent writer
// that commits between a read and the guarded write that follows it.
type Racer struct {
	repository.DBExecutor

	Match string
	Race  func(ctx context.Context, db repository.DBExecutor) error
	// Times bounds how many matching statements race. Zero means once.
	Times int
	// Lose reports the matching statement as having touched no row instead
	// of running it, the outcome of a guard re-checked after a rival commit.
	Lose bool

	mu    sync.Mutex
	fired int
}

// Fired returns how many statements raced.
func (r *Racer) Fired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired
}

func (r *Racer) intercept(ctx context.Context, query string) (bool, error) {
	if !strings.Contains(query, r.Match) {
		return false, nil
	}

	r.mu.Lock()
	times := r.Times
	if times == 0 {
		times = 1
	}
	if r.fired >= times {
		r.mu.Unlock()
		return false, nil
	}
	r.fired++
	r.mu.Unlock()

	if r.Race != nil {
		if err := r.Race(ctx, r.DBExecutor); err != nil {
			return false, err
		}
	}
	return r.Lose, nil
}

func (r *Racer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	lose, err := r.intercept(ctx, query)
	if err != nil {
		return nil, err
	}
	if lose {
		return driver.RowsAffected(0), nil
	}
	return r.DBExecutor.ExecContext(ctx, query, args...)
}

func (r *Racer) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	lose, err := r.intercept(ctx, query)
	if err != nil {
		return err
	}
	if lose {
		return sql.ErrNoRows
	}
	return r.DBExecutor.GetContext(ctx, dest, query, args...)
}
