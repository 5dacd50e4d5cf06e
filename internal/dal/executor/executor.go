// Package executor runs single statements against the pool with per-attempt
// timeouts and bounded retries for connection-class failures.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/sethvargo/go-retry"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
)

// Pool is the part of pool.Manager the executor relies on.
type Pool interface {
	Acquire(ctx context.Context) (storage.PooledConn, error)
	Reset(ctx context.Context) error
	Dialect() storage.Dialect
}

// Config tunes retries.
type Config struct {
	// MaxAttempts includes the first try.
	MaxAttempts int
	// Backoff is the base delay. The n-th retry waits n*Backoff.
	Backoff time.Duration
	// QueryTimeout bounds one attempt, acquisition included. Zero disables it.
	QueryTimeout time.Duration
	// ResetTimeout bounds recreating the pool after a connection failure.
	// It defaults to QueryTimeout, or 5s when that is disabled.
	ResetTimeout time.Duration
}

const defaultResetTimeout = 5 * time.Second

// Details describes why a statement failed.
type Details struct {
	Class      Class
	Code       string
	Suggestion string
}

// Result is the outcome of Execute.
type Result struct {
	// RowCount is the number of rows scanned for queries and rows affected
	// for statements run without a scan function.
	RowCount     int64
	LastInsertID int64
	Attempts     int
	Err          error
	Details      Details
}

// OK reports whether the statement succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Error converts the raw failure into the service error vocabulary.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}

	switch {
	case r.Details.Class.Retryable(), r.Details.Class == ClassPoolExhausted:
		return &errs.TransientError{
			Class:      string(r.Details.Class),
			Suggestion: r.Details.Suggestion,
			Attempts:   r.Attempts,
			Err:        r.Err,
		}
	case r.Details.Class == ClassQuery:
		return fmt.Errorf("execute statement: %w", r.Err)
	default:
		return r.Err
	}
}

// Executor runs statements outside of any transaction.
type Executor struct {
	pool Pool
	cfg  Config
}

// New creates an executor over p.
func New(p Pool, cfg Config) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = cfg.QueryTimeout
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}

	return &Executor{pool: p, cfg: cfg}
}

// Dialect returns the SQL dialect of the underlying pool.
func (e *Executor) Dialect() storage.Dialect {
	return e.pool.Dialect()
}

// Query runs q and hands rows to scan, retrying transient failures.
func (e *Executor) Query(ctx context.Context, q sq.Sqlizer, scan storage.ScanFunc) error {
	if scan == nil {
		scan = func(storage.Rows) error { return nil }
	}

	return e.Execute(ctx, q, scan).Error()
}

// Exec runs q for its side effects, retrying transient failures.
func (e *Executor) Exec(ctx context.Context, q sq.Sqlizer) (storage.CommandTag, error) {
	res := e.Execute(ctx, q, nil)

	return storage.CommandTag{RowsAffected: res.RowCount, LastInsertID: res.LastInsertID}, res.Error()
}

// Execute renders q and runs it on a pooled connection. With a nil scan the
// statement is executed for its side effects only. Connections are released
// on every path, and the pool is recreated after connection or auth failures.
func (e *Executor) Execute(ctx context.Context, q sq.Sqlizer, scan storage.ScanFunc) Result {
	sql, args, err := e.pool.Dialect().Render(q)
	if err != nil {
		slog.Error("Failed to render statement", "error", err)
		metrics.ExecutorAttempts.WithLabelValues("failed", string(ClassInvalid)).Inc()

		return failed(err, 0, ClassInvalid, "")
	}

	if err := ctx.Err(); err != nil {
		class, _ := Classify(err)

		return failed(err, 0, class, "")
	}

	var (
		res     Result
		lastErr error
		class   Class
		code    string
	)

	step := int64(0)
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		step++

		return time.Duration(step) * e.cfg.Backoff, false
	})

	err = retry.Do(ctx, retry.WithMaxRetries(uint64(e.cfg.MaxAttempts-1), backoff), func(ctx context.Context) error {
		res.Attempts++

		rows, tag, err := e.attempt(ctx, sql, args, scan)
		if err == nil {
			res.RowCount = rows
			res.LastInsertID = tag.LastInsertID
			metrics.ExecutorAttempts.WithLabelValues("success", "").Inc()

			return nil
		}

		lastErr = err
		class, code = Classify(err)

		slog.Warn("Database statement failed",
			"attempt", res.Attempts,
			"class", class,
			"code", code,
			"error", err,
		)

		// No retry follows the last attempt, so there is nothing to reset for.
		if class.resetsPool() && res.Attempts < e.cfg.MaxAttempts {
			e.resetPool(ctx)
		}

		if class.Retryable() {
			metrics.ExecutorAttempts.WithLabelValues("retry", string(class)).Inc()

			return retry.RetryableError(err)
		}

		metrics.ExecutorAttempts.WithLabelValues("failed", string(class)).Inc()

		return err
	})
	if err == nil {
		return res
	}

	if lastErr == nil {
		// The context ended before the first attempt.
		lastErr = err
		class, code = Classify(err)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			lastErr = fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			class, code = Classify(ctx.Err())
		}
	}

	if class.Retryable() && res.Attempts >= e.cfg.MaxAttempts {
		slog.Error("Database statement failed after retries",
			"attempts", res.Attempts,
			"class", class,
			"error", lastErr,
		)
	}

	return failed(lastErr, res.Attempts, class, code)
}

// resetPool recreates the pool under ResetTimeout so an unreachable
// database cannot stall the caller past its retry budget.
func (e *Executor) resetPool(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ResetTimeout)
	defer cancel()

	if err := e.pool.Reset(ctx); err != nil {
		slog.Error("Failed to reset connection pool", "error", err)
	}
}

// attempt runs one try on a fresh connection under the per-attempt timeout.
func (e *Executor) attempt(
	ctx context.Context,
	sql string,
	args []any,
	scan storage.ScanFunc,
) (int64, storage.CommandTag, error) {
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return 0, storage.CommandTag{}, err
	}
	defer conn.Release()

	if scan == nil {
		tag, err := conn.Exec(ctx, sql, args...)
		if err != nil {
			return 0, storage.CommandTag{}, err
		}

		return tag.RowsAffected, tag, nil
	}

	counter := &countingRows{}
	err = storage.RunQuery(ctx, conn, sql, args, func(rows storage.Rows) error {
		counter.Rows = rows

		return scan(counter)
	})
	if err != nil {
		return 0, storage.CommandTag{}, err
	}

	return counter.n, storage.CommandTag{}, nil
}

func failed(err error, attempts int, class Class, code string) Result {
	return Result{
		Attempts: attempts,
		Err:      err,
		Details: Details{
			Class:      class,
			Code:       code,
			Suggestion: class.Suggestion(),
		},
	}
}

type countingRows struct {
	storage.Rows
	n int64
}

func (r *countingRows) Next() bool {
	if r.Rows.Next() {
		r.n++

		return true
	}

	return false
}
