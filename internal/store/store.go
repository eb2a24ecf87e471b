// Package store owns the database handle and the unit of work every
// state-changing operation runs in.
//
// Row locks are always taken in the same order to keep deadlocks rare:
// wallet, reservation, ride, bike, dock.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 5 * time.Second
)

type DB struct {
	db         *sqlx.DB
	maxRetries int
	timeout    time.Duration
	logger     *slog.Logger
}

type Option func(*DB)

func WithMaxRetries(n int) Option {
	return func(d *DB) {
		d.maxRetries = n
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *DB) {
		d.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

func New(db *sqlx.DB, opts ...Option) *DB {
	d := &DB{
		db:         db,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect opens a pgx backed sqlx handle and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}

// Reader returns the handle for reads that tolerate staleness.
func (d *DB) Reader() *sqlx.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// InTx runs fn inside one transaction under a bounded deadline. The closure
// is re-run from scratch on serialization failures, deadlocks and lock
// timeouts, up to the configured retry count. Any other error rolls the
// transaction back and is returned unchanged.
func (d *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		err := d.runTx(ctx, fn)
		if err == nil || !isTransient(err) {
			return err
		}

		if attempt >= d.maxRetries {
			return fmt.Errorf("%w: gave up after %d attempts: %v",
				apperrors.ErrTransientStoreConflict, attempt+1, err)
		}

		d.logger.WarnContext(ctx, "retrying transaction", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", apperrors.ErrTransientStoreConflict, ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
}

func (d *DB) runTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return true
	}
	return false
}

func backoff(attempt int) time.Duration {
	base := time.Duration(attempt+1) * 20 * time.Millisecond
	return base + rand.N(10*time.Millisecond)
}

// IsUniqueViolation reports whether err came from a unique index, optionally
// a specific one.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
