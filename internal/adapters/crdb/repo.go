package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"

	defaultMaxTxAttempts = 4
)

type Repository struct {
	pool          *pgxpool.Pool
	maxTxAttempts int
	backoff       func(attempt int) time.Duration
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:          pool,
		maxTxAttempts: defaultMaxTxAttempts,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * 10 * time.Millisecond
		},
	}
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type txKey struct{}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction carried by ctx, or the pool.
func (r *Repository) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// WithTx runs fn in a SERIALIZABLE transaction carried by the context passed
// to fn. Serialization failures are retried with exponential backoff; once
// the attempts are used up the error is a retryable domain.ErrStorage.
// Nested calls join the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt < r.maxTxAttempts; attempt++ {
		if attempt > 0 {
			observability.DBTxRetries.Inc()
			select {
			case <-ctx.Done():
				return domain.Storage(ctx.Err(), "transaction retry")
			case <-time.After(r.backoff(attempt)):
			}
		}
		err = r.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return errors.Mark(errors.Wrapf(domain.ErrSerializationFailure, "gave up after %d attempts: %v", r.maxTxAttempts, err), domain.ErrStorage)
}

func (r *Repository) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Storage(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return domain.Storage(err, "set isolation level")
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Storage(err, "commit")
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isSerializationFailure(err error) bool {
	return err != nil && (pgCode(err) == SerializationFailureCode || errors.Is(err, domain.ErrSerializationFailure))
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == UniqueViolationCode
}
