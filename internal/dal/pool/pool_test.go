package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

type fakeConn struct {
	driver *fakeDriver
}

func (c *fakeConn) Exec(context.Context, string, ...any) (storage.CommandTag, error) {
	return storage.CommandTag{}, nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (storage.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) Begin(context.Context) (storage.Tx, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) Release() {
	c.driver.released.Add(1)
}

type fakeDriver struct {
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32
	closed     atomic.Bool
}

func (d *fakeDriver) Acquire(context.Context) (storage.PooledConn, error) {
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	d.acquired.Add(1)

	return &fakeConn{driver: d}, nil
}

func (d *fakeDriver) Ping(context.Context) error { return nil }

func (d *fakeDriver) Stat() Stat {
	return Stat{AcquiredConns: int(d.acquired.Load() - d.released.Load())}
}

func (d *fakeDriver) Close() { d.closed.Store(true) }

type opener struct {
	mu      sync.Mutex
	drivers []*fakeDriver
}

func (o *opener) open(context.Context) (Driver, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	d := &fakeDriver{}
	o.drivers = append(o.drivers, d)

	return d, nil
}

func (o *opener) driver(i int) *fakeDriver {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.drivers[i]
}

func newManager(t *testing.T, cfg Config) (*Manager, *opener) {
	t.Helper()

	o := &opener{}
	m, err := New(context.Background(), storage.Postgres, o.open, cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return m, o
}

func TestAcquire_FailFastWhenQueueDepthZero(t *testing.T) {
	m, _ := newManager(t, Config{MaxConns: 2, QueueDepth: 0})
	ctx := context.Background()

	c1, err := m.Acquire(ctx)
	require.NoError(t, err)
	c2, err := m.Acquire(ctx)
	require.NoError(t, err)

	_, err = m.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	c1.Release()
	c3, err := m.Acquire(ctx)
	require.NoError(t, err)

	c2.Release()
	c3.Release()
}

func TestAcquire_BoundedQueue(t *testing.T) {
	m, _ := newManager(t, Config{MaxConns: 1, QueueDepth: 1})
	ctx := context.Background()

	held, err := m.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		c, err := m.Acquire(ctx)
		if err == nil {
			c.Release()
		}
		got <- err
	}()

	require.Eventually(t, func() bool { return m.waiting.Load() == 1 }, time.Second, time.Millisecond)

	_, err = m.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	held.Release()
	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queued caller never got a connection")
	}
}

func TestAcquire_Timeout(t *testing.T) {
	m, _ := newManager(t, Config{MaxConns: 1, QueueDepth: -1, AcquireTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	held, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = m.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquire_DriverErrorFreesSlot(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	open := func(context.Context) (Driver, error) {
		return &fakeDriver{acquireErr: boom}, nil
	}
	m, err := New(context.Background(), storage.MySQL, open, Config{MaxConns: 1})
	require.NoError(t, err)
	defer m.Close()

	for range 3 {
		_, err := m.Acquire(context.Background())
		assert.ErrorIs(t, err, boom)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	m, o := newManager(t, Config{MaxConns: 1})

	c, err := m.Acquire(context.Background())
	require.NoError(t, err)

	c.Release()
	c.Release()

	assert.Equal(t, int32(1), o.driver(0).released.Load())

	c2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	c2.Release()

	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
}

func TestWithConn_ReleasesOnErrorAndPanic(t *testing.T) {
	m, o := newManager(t, Config{MaxConns: 1})
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.WithConn(ctx, func(storage.PooledConn) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = m.WithConn(ctx, func(storage.PooledConn) error { panic("scan failed") })
	})

	assert.Equal(t, int32(2), o.driver(0).released.Load())

	err = m.WithConn(ctx, func(storage.PooledConn) error { return nil })
	assert.NoError(t, err)
}

func TestReset_SwapsDriverAndClosesOld(t *testing.T) {
	m, o := newManager(t, Config{MaxConns: 2})
	ctx := context.Background()

	require.NoError(t, m.Reset(ctx))

	require.Eventually(t, func() bool { return o.driver(0).closed.Load() }, time.Second, time.Millisecond)

	c, err := m.Acquire(ctx)
	require.NoError(t, err)
	c.Release()
	assert.Equal(t, int32(1), o.driver(1).acquired.Load())

	// A second reset right away is coalesced.
	require.NoError(t, m.Reset(ctx))
	o.mu.Lock()
	assert.Len(t, o.drivers, 2)
	o.mu.Unlock()
}

func TestClosedPool(t *testing.T) {
	o := &opener{}
	m, err := New(context.Background(), storage.Postgres, o.open, Config{MaxConns: 1})
	require.NoError(t, err)

	m.Close()
	m.Close()

	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, o.driver(0).closed.Load())
}
