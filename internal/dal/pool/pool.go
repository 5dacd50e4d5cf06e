// Package pool bounds and supervises access to database connections.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/metrics"
)

var (
	// ErrPoolExhausted is returned when every connection is held and the wait queue is full.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed    = errors.New("connection pool closed")
)

// minResetInterval keeps concurrent failing callers from recreating the pool in a loop.
const minResetInterval = time.Second

// Driver is an engine-specific connection pool.
type Driver interface {
	Acquire(ctx context.Context) (storage.PooledConn, error)
	Ping(ctx context.Context) error
	Stat() Stat
	Close()
}

// Opener creates a fresh Driver. It is called once at start and on every Reset.
type Opener func(ctx context.Context) (Driver, error)

// Stat is a snapshot of driver-level pool counters.
type Stat struct {
	TotalConns    int
	IdleConns     int
	AcquiredConns int
}

// Config bounds the pool.
type Config struct {
	// MaxConns caps connections held at the same time.
	MaxConns int
	// QueueDepth is the number of callers allowed to wait for a connection:
	// negative means unbounded, zero means fail fast.
	QueueDepth int
	// AcquireTimeout bounds how long a caller waits for a connection.
	AcquireTimeout time.Duration
}

// Manager hands out exclusive connections under a concurrency cap and can
// replace the underlying driver when it goes stale.
type Manager struct {
	cfg     Config
	dialect storage.Dialect
	open    Opener

	mu     sync.RWMutex
	driver Driver

	resetMu   sync.Mutex
	lastReset time.Time

	sem     *semaphore.Weighted
	waiting atomic.Int64
	closed  atomic.Bool
}

// New opens the first driver and returns a ready manager.
func New(ctx context.Context, dialect storage.Dialect, open Opener, cfg Config) (*Manager, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}

	driver, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", dialect, err)
	}

	slog.Info("Connection pool ready",
		"dialect", dialect,
		"max_conns", cfg.MaxConns,
		"queue_depth", cfg.QueueDepth,
		"acquire_timeout", cfg.AcquireTimeout,
	)

	return &Manager{
		cfg:     cfg,
		dialect: dialect,
		open:    open,
		driver:  driver,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConns)),
	}, nil
}

// Dialect returns the SQL dialect of the underlying engine.
func (m *Manager) Dialect() storage.Dialect {
	return m.dialect
}

// Acquire returns a connection owned by the caller until Release is called.
// Release is idempotent.
func (m *Manager) Acquire(ctx context.Context) (storage.PooledConn, error) {
	if m.closed.Load() {
		return nil, ErrPoolClosed
	}

	if m.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}

	if err := m.reserve(ctx); err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			metrics.PoolAcquisitions.WithLabelValues("exhausted").Inc()
		} else {
			metrics.PoolAcquisitions.WithLabelValues("error").Inc()
		}

		return nil, err
	}

	conn, err := m.currentDriver().Acquire(ctx)
	if err != nil {
		m.sem.Release(1)
		metrics.PoolAcquisitions.WithLabelValues("error").Inc()
		slog.Warn("Failed to acquire database connection", "dialect", m.dialect, "error", err)

		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	metrics.PoolAcquisitions.WithLabelValues("ok").Inc()
	metrics.PoolInUse.Inc()

	return &managedConn{PooledConn: conn, manager: m}, nil
}

// WithConn runs fn on an acquired connection and releases it on every exit
// path, panics included.
func (m *Manager) WithConn(ctx context.Context, fn func(conn storage.PooledConn) error) error {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(conn)
}

// Reset replaces the driver with a freshly opened one. The old driver is
// closed in the background once its borrowed connections come back.
func (m *Manager) Reset(ctx context.Context) error {
	if m.closed.Load() {
		return ErrPoolClosed
	}

	m.resetMu.Lock()
	defer m.resetMu.Unlock()

	if time.Since(m.lastReset) < minResetInterval {
		return nil
	}

	driver, err := m.open(ctx)
	if err != nil {
		slog.Error("Failed to recreate connection pool", "dialect", m.dialect, "error", err)

		return fmt.Errorf("reopen %s pool: %w", m.dialect, err)
	}

	m.mu.Lock()
	old := m.driver
	m.driver = driver
	m.mu.Unlock()
	m.lastReset = time.Now()

	metrics.PoolResets.Inc()
	slog.Warn("Connection pool recreated", "dialect", m.dialect)

	go old.Close()

	return nil
}

// Ping checks that the database answers.
func (m *Manager) Ping(ctx context.Context) error {
	return m.currentDriver().Ping(ctx)
}

// Stat returns driver counters.
func (m *Manager) Stat() Stat {
	return m.currentDriver().Stat()
}

// Close closes the pool for graceful shutdown.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}
	m.currentDriver().Close()
}

func (m *Manager) currentDriver() Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.driver
}

// reserve takes one slot of the concurrency cap, queueing if the policy allows.
func (m *Manager) reserve(ctx context.Context) error {
	if m.sem.TryAcquire(1) {
		return nil
	}

	if m.cfg.QueueDepth == 0 {
		return ErrPoolExhausted
	}
	if n := m.waiting.Add(1); m.cfg.QueueDepth > 0 && n > int64(m.cfg.QueueDepth) {
		m.waiting.Add(-1)

		return ErrPoolExhausted
	}
	defer m.waiting.Add(-1)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for connection: %w", err)
	}

	return nil
}

type managedConn struct {
	storage.PooledConn
	manager *Manager
	once    sync.Once
}

func (c *managedConn) Release() {
	c.once.Do(func() {
		c.PooledConn.Release()
		c.manager.sem.Release(1)
		metrics.PoolInUse.Dec()
	})
}
