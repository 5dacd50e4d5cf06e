// Package mysql is the database/sql connection pool driver for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/corray333/backend-labs/storefront/internal/dal/migrations"
	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

// Config holds database/sql pool settings.
type Config struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client wraps a *sql.DB talking to MySQL.
type Client struct {
	db *sql.DB
}

// Opener returns a pool.Opener producing a fresh *sql.DB on every call.
func Opener(cfg Config) pool.Opener {
	return func(ctx context.Context) (pool.Driver, error) {
		return NewClient(ctx, cfg)
	}
}

// NewClient connects to MySQL and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	// DATETIME columns are scanned into time.Time.
	dsn.ParseTime = true
	dsn.Loc = time.UTC

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	slog.Info("MySQL connected", "addr", dsn.Addr, "database", dsn.DBName)

	return &Client{db: db}, nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Migrate applies the embedded schema.
func (c *Client) Migrate() error {
	return migrations.Up(c.db, storage.MySQL)
}

func (c *Client) Acquire(ctx context.Context) (storage.PooledConn, error) {
	sc, err := c.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	return &conn{c: sc}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Stat() pool.Stat {
	s := c.db.Stats()

	return pool.Stat{
		TotalConns:    s.OpenConnections,
		IdleConns:     s.Idle,
		AcquiredConns: s.InUse,
	}
}

// Close closes the database connection for graceful shutdown.
func (c *Client) Close() {
	if err := c.db.Close(); err != nil {
		slog.Warn("Failed to close MySQL pool", "error", err)

		return
	}
	slog.Info("MySQL pool closed")
}

type conn struct {
	c *sql.Conn
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (storage.CommandTag, error) {
	return exec(ctx, c.c, query, args)
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	return queryRows(ctx, c.c, query, args)
}

func (c *conn) Begin(ctx context.Context) (storage.Tx, error) {
	t, err := c.c.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &tx{t: t}, nil
}

// Release hands the connection back to database/sql.
func (c *conn) Release() {
	if err := c.c.Close(); err != nil {
		slog.Debug("MySQL connection returned with error", "error", err)
	}
}

type tx struct {
	t *sql.Tx
}

func (t *tx) Exec(ctx context.Context, query string, args ...any) (storage.CommandTag, error) {
	return exec(ctx, t.t, query, args)
}

func (t *tx) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	return queryRows(ctx, t.t, query, args)
}

func (t *tx) Commit(context.Context) error {
	return t.t.Commit()
}

func (t *tx) Rollback(context.Context) error {
	return t.t.Rollback()
}

// sqlConn is satisfied by both *sql.Conn and *sql.Tx.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func exec(ctx context.Context, c sqlConn, query string, args []any) (storage.CommandTag, error) {
	res, err := c.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.CommandTag{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storage.CommandTag{}, fmt.Errorf("read rows affected: %w", err)
	}
	// LastInsertId is zero for statements that insert nothing.
	lastID, _ := res.LastInsertId()

	return storage.CommandTag{RowsAffected: affected, LastInsertID: lastID}, nil
}

func queryRows(ctx context.Context, c sqlConn, query string, args []any) (storage.Rows, error) {
	r, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &rows{Rows: r}, nil
}

type rows struct {
	*sql.Rows
}

func (r *rows) Close() {
	if err := r.Rows.Close(); err != nil {
		slog.Debug("Failed to close result set", "error", err)
	}
}
