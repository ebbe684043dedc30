// Package database wraps the pgx connection pool and carries the active
// transaction through context.Context so stores can join it transparently.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured is returned by every operation when no database URL was
// configured.
var ErrNotConfigured = errors.New("database not configured")

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor runs fn inside a single transaction. The transaction is carried
// by the context handed to fn.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	PingAttempts    int
}

// Connect creates a pool for url and pings it, retrying a few times while the
// database comes up.
func Connect(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	attempts := opts.PingAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var pingErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = pool.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			return pool, nil
		}
		slog.Warn("failed to ping database", "attempt", i+1, "error", pingErr)
		if i < attempts-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	pool.Close()
	return nil, fmt.Errorf("pinging database: %w", pingErr)
}

type txKey struct{}

// DB hands out the transaction bound to a context, or the pool otherwise.
type DB struct {
	pool *pgxpool.Pool
}

// New wraps pool. A nil pool yields a DB whose operations all fail with
// ErrNotConfigured.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Pool returns the underlying pool, which may be nil.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Conn returns the querier to use for ctx.
func (db *DB) Conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	if db.pool == nil {
		return unconfigured{}
	}
	return db.pool
}

// InTx runs fn in a transaction. Nested calls join the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	if db.pool == nil {
		return ErrNotConfigured
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return ErrNotConfigured
	}
	return db.pool.Ping(ctx)
}

// Stat reports pool connection counts for the metrics collector.
func (db *DB) Stat() (total, idle, acquired int32) {
	if db.pool == nil {
		return 0, 0, 0
	}
	s := db.pool.Stat()
	return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsUnavailable reports whether err means the database cannot be reached.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

type unconfigured struct{}

func (unconfigured) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrNotConfigured
}

func (unconfigured) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrNotConfigured
}

func (unconfigured) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: ErrNotConfigured}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
