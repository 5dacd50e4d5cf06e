// Package postgres is the pgx-backed connection pool driver.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/corray333/backend-labs/storefront/internal/dal/migrations"
	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

// Config holds pgxpool settings.
type Config struct {
	DSN               string
	MaxConns          int
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// Client wraps a pgx pool.
type Client struct {
	pool *pgxpool.Pool
}

// Opener returns a pool.Opener producing a fresh pgx pool on every call.
func Opener(cfg Config) pool.Opener {
	return func(ctx context.Context) (pool.Driver, error) {
		return NewClient(ctx, cfg)
	}
}

// NewClient connects to Postgres and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	config.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		slog.Debug("Postgres connection opened", "pid", conn.PgConn().PID())

		return nil
	}
	config.BeforeClose = func(conn *pgx.Conn) {
		slog.Debug("Postgres connection closed", "pid", conn.PgConn().PID())
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("Postgres connected", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)

	return &Client{pool: p}, nil
}

// Pool returns the underlying connection pool.
func (p *Client) Pool() *pgxpool.Pool {
	return p.pool
}

// Migrate applies the embedded schema through a database/sql view of the pool.
func (p *Client) Migrate() error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	return migrations.Up(db, storage.Postgres)
}

func (p *Client) Acquire(ctx context.Context) (storage.PooledConn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return &conn{c: c}, nil
}

func (p *Client) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Client) Stat() pool.Stat {
	s := p.pool.Stat()

	return pool.Stat{
		TotalConns:    int(s.TotalConns()),
		IdleConns:     int(s.IdleConns()),
		AcquiredConns: int(s.AcquiredConns()),
	}
}

// Close closes the database connection for graceful shutdown.
func (p *Client) Close() {
	p.pool.Close()
	slog.Info("Postgres pool closed")
}

type conn struct {
	c *pgxpool.Conn
}

func (c *conn) Exec(ctx context.Context, sql string, args ...any) (storage.CommandTag, error) {
	return exec(ctx, c.c, sql, args)
}

func (c *conn) Query(ctx context.Context, sql string, args ...any) (storage.Rows, error) {
	return query(ctx, c.c, sql, args)
}

func (c *conn) Begin(ctx context.Context) (storage.Tx, error) {
	t, err := c.c.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &tx{t: t}, nil
}

func (c *conn) Release() {
	c.c.Release()
}

type tx struct {
	t pgx.Tx
}

func (t *tx) Exec(ctx context.Context, sql string, args ...any) (storage.CommandTag, error) {
	return exec(ctx, t.t, sql, args)
}

func (t *tx) Query(ctx context.Context, sql string, args ...any) (storage.Rows, error) {
	return query(ctx, t.t, sql, args)
}

func (t *tx) Commit(ctx context.Context) error {
	return t.t.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	return t.t.Rollback(ctx)
}

// pgxConn is satisfied by both *pgxpool.Conn and pgx.Tx.
type pgxConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func exec(ctx context.Context, c pgxConn, sql string, args []any) (storage.CommandTag, error) {
	tag, err := c.Exec(ctx, sql, args...)
	if err != nil {
		return storage.CommandTag{}, err
	}

	return storage.CommandTag{RowsAffected: tag.RowsAffected()}, nil
}

func query(ctx context.Context, c pgxConn, sql string, args []any) (storage.Rows, error) {
	rows, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return rows, nil
}
