package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kkkkikiki/pizzeria/internal/config"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB holds database connections
type DB struct {
	SQL *sqlx.DB
}

// NewDB creates new database connections using config
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)

	switch cfg.Database.Driver {
	case "sqlite":
		conn, err = OpenSQLite(ctx, cfg.Database.Path)
		if err != nil {
			return nil, err
		}
	default:
		conn, err = sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

		// Configure connection pool
		conn.SetMaxOpenConns(cfg.Database.MaxConns)
		conn.SetMaxIdleConns(cfg.Database.MinConns)
		conn.SetConnMaxLifetime(time.Hour)

		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
		}
	}

	log.Printf("Successfully connected to %s", cfg.Database.Driver)

	if cfg.Database.Migrate {
		if err := Migrate(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return &DB{
		SQL: conn,
	}, nil
}

// OpenSQLite opens a SQLite database file. Writers are serialized through a
// single connection, which is how SQLite behaves underneath anyway.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return conn, nil
}

// Close closes all database connections
func (db *DB) Close() error {
	if err := db.SQL.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
