package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-notify/internal/apperr"
)

const defaultOperationTimeout = 5 * time.Second

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PgGoNotifyRepository struct {
	*pgQueries
	conn    *sql.DB
	timeout time.Duration
}

func NewPgGoNotifyRepository(dsn string, timeout time.Duration) (*PgGoNotifyRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, translateError(err)
	}

	return newPgGoNotifyRepository(db, timeout), nil
}

func newPgGoNotifyRepository(db *sql.DB, timeout time.Duration) *PgGoNotifyRepository {
	return &PgGoNotifyRepository{
		pgQueries: &pgQueries{db: db, timeout: timeout},
		conn:      db,
		timeout:   timeout,
	}
}

// DB exposes the pool for schema migrations.
func (db *PgGoNotifyRepository) DB() *sql.DB {
	return db.conn
}

func (db *PgGoNotifyRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	return translateError(db.conn.PingContext(ctx))
}

func (db *PgGoNotifyRepository) InTx(ctx context.Context, fn func(q Queries) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return translateError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	deadline, _ := ctx.Deadline()
	if err = fn(&pgQueries{db: tx, deadline: deadline}); err != nil {
		return txError(ctx, err)
	}

	if err = tx.Commit(); err != nil {
		return txError(ctx, translateError(fmt.Errorf("commit tx: %w", err)))
	}
	return nil
}

// txError reports a transaction that outlived its deadline as unavailable.
// database/sql rolls such a transaction back on its own and later statements
// fail with sql.ErrTxDone.
func txError(ctx context.Context, err error) error {
	if apperr.Is(err, apperr.KindUnavailable) {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, sql.ErrTxDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return apperr.Unavailable("datastore unavailable", fmt.Errorf("%w: %w", ctx.Err(), err))
	}
	return err
}

func (db *PgGoNotifyRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type pgQueries struct {
	db      dbtx
	timeout time.Duration
	// deadline bounds every statement of a transaction, whatever context the
	// caller passes in.
	deadline time.Time
}

func (q *pgQueries) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if !q.deadline.IsZero() {
		return context.WithDeadline(ctx, q.deadline)
	}
	if q.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, q.timeout)
}
