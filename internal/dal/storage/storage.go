// Package storage defines the engine-neutral contract repositories are written against.
package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Rows is the cursor shape shared by pgx and database/sql.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// CommandTag is the outcome of a statement that returns no rows.
type CommandTag struct {
	RowsAffected int64
	// LastInsertID is only filled by engines without RETURNING support.
	LastInsertID int64
}

// Conn runs statements already rendered for the engine's dialect.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Tx is a transaction bound to one held connection.
type Tx interface {
	Conn
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PooledConn is a connection exclusively owned by the caller until Release.
type PooledConn interface {
	Conn
	Begin(ctx context.Context) (Tx, error)
	Release()
}

// ScanFunc consumes query rows. It may be invoked more than once when a
// query is retried, so it must reset whatever it accumulates.
type ScanFunc func(rows Rows) error

// Querier executes squirrel builders. It is implemented both by the retrying
// executor and by transaction-bound connections, so repositories run unchanged
// inside and outside a transaction.
type Querier interface {
	Query(ctx context.Context, q sq.Sqlizer, scan ScanFunc) error
	Exec(ctx context.Context, q sq.Sqlizer) (CommandTag, error)
	Dialect() Dialect
}

// Bind adapts a raw connection or transaction to Querier.
func Bind(conn Conn, dialect Dialect) Querier {
	return &boundQuerier{conn: conn, dialect: dialect}
}

type boundQuerier struct {
	conn    Conn
	dialect Dialect
}

func (b *boundQuerier) Dialect() Dialect {
	return b.dialect
}

func (b *boundQuerier) Query(ctx context.Context, q sq.Sqlizer, scan ScanFunc) error {
	sql, args, err := b.dialect.Render(q)
	if err != nil {
		return err
	}

	return RunQuery(ctx, b.conn, sql, args, scan)
}

func (b *boundQuerier) Exec(ctx context.Context, q sq.Sqlizer) (CommandTag, error) {
	sql, args, err := b.dialect.Render(q)
	if err != nil {
		return CommandTag{}, err
	}

	return b.conn.Exec(ctx, sql, args...)
}

// RunQuery runs sql on conn and hands the rows to scan, closing them afterwards.
func RunQuery(ctx context.Context, conn Conn, sql string, args []any, scan ScanFunc) error {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	if scan != nil {
		if err := scan(rows); err != nil {
			return err
		}
	} else {
		for rows.Next() {
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}

	return nil
}
