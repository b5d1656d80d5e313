// Package postgres contains PostgreSQL implementations of repository interfaces.
// Credential records live as JSONB documents in a single table, so the table behaves
// as a keyed document collection.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultCollection is the table holding credential documents.
const DefaultCollection = "passwords"

// PgxPool is a minimal abstraction over a Postgres connection pool,
// used by repositories. It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close shuts down the pool and frees resources.
	Close()
}

// DB wraps pgxpool.Pool to satisfy repository constructors and allow testing.
type DB struct{ Pool PgxPool }

// Options describe how to reach the store.
type Options struct {
	DSN            string
	Database       string        // overrides the database named in DSN when set
	ConnectTimeout time.Duration // per-connection dial timeout; 0 keeps the driver default
}

// ParseConfig builds a pool config from opts. The same config feeds migrations
// and the runtime pool so both talk to the same database.
func ParseConfig(opts Options) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if opts.Database != "" {
		pc.ConnConfig.Database = opts.Database
	}
	if opts.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	return pc, nil
}

// New creates the process-wide pool and pings it, so an unreachable store fails startup.
func New(ctx context.Context, pc *pgxpool.Config) (*DB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// Ping checks the store is reachable.
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }
