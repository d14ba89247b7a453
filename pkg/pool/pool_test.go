package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ordersync/dbcore/pkg/pool"
)

// stubFactory is a Factory over fake connections, counting lifecycle calls.
type stubFactory struct {
	mu        sync.Mutex
	created   atomic.Int64
	destroyed atomic.Int64
	createErr error
	validate  func(*pool.Conn) bool
	delay     time.Duration
}

func (f *stubFactory) Create(ctx context.Context) (*pool.Conn, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.created.Add(1)
	return pool.NewConn("test", nil), nil
}

func (f *stubFactory) Validate(conn *pool.Conn) bool {
	if f.validate != nil {
		return f.validate(conn)
	}
	return conn != nil && conn.Healthy()
}

func (f *stubFactory) Destroy(_ context.Context, conn *pool.Conn) error {
	if conn == nil {
		return nil
	}
	f.destroyed.Add(1)
	return nil
}

func (f *stubFactory) setCreateErr(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

func TestPool_AcquireRelease(t *testing.T) {
	t.Parallel()

	t.Run("roundtrip restores counts", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 3})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, p.Stats().Borrowed)
		require.Equal(t, 0, p.Stats().Available)

		p.Release(conn)
		require.Equal(t, 0, p.Stats().Borrowed)
		require.Equal(t, 1, p.Stats().Available)
		require.Equal(t, 1, p.Stats().Size)
	})

	t.Run("reuses idle connection", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 3})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(conn)

		again, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.Equal(t, conn.ID(), again.ID())
		require.EqualValues(t, 1, f.created.Load())
	})

	t.Run("stamps generation on created connections", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.Equal(t, p.Generation(), conn.Generation())
	})

	t.Run("create failure surfaces and frees the slot", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		f.setCreateErr(errors.New("handshake failed"))
		p := pool.New("test", f, pool.Config{MaxSize: 1})

		_, err := p.Acquire(context.Background())
		require.Error(t, err)

		f.setCreateErr(nil)
		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(conn)
	})

	t.Run("release of nil is a no-op", func(t *testing.T) {
		t.Parallel()

		p := pool.New("test", &stubFactory{}, pool.Config{MaxSize: 1})
		p.Release(nil)
		require.Equal(t, 0, p.Stats().Size)
	})
}

func TestPool_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("invalid connection destroyed on release and replaced lazily", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{validate: func(c *pool.Conn) bool {
			return c.OperationCount() < 2
		}}
		p := pool.New("test", f, pool.Config{MaxSize: 2})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		conn.RecordOperation()
		conn.RecordOperation()
		first := conn.ID()

		p.Release(conn)
		require.Eventually(t, func() bool {
			return f.destroyed.Load() == 1
		}, time.Second, 5*time.Millisecond)
		require.Equal(t, 0, p.Stats().Size, "no eager replacement")

		// Next acquire creates the replacement.
		repl, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, first, repl.ID())
	})

	t.Run("unhealthy connection never re-issued", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 2})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		conn.MarkUnhealthy()
		bad := conn.ID()
		p.Release(conn)

		next, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, bad, next.ID())
	})

	t.Run("stale idle connection skipped on acquire", func(t *testing.T) {
		t.Parallel()

		stale := make(map[string]bool)
		var mu sync.Mutex
		f := &stubFactory{validate: func(c *pool.Conn) bool {
			mu.Lock()
			defer mu.Unlock()
			return !stale[c.ID()]
		}}
		p := pool.New("test", f, pool.Config{MaxSize: 2})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		p.Release(conn)

		mu.Lock()
		stale[conn.ID()] = true
		mu.Unlock()

		next, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, conn.ID(), next.ID())
	})
}

func TestPool_Exhaustion(t *testing.T) {
	t.Parallel()

	t.Run("six acquires against max five", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 5})
		ctx := context.Background()

		conns := make([]*pool.Conn, 5)
		for i := range conns {
			c, err := p.Acquire(ctx)
			require.NoError(t, err)
			conns[i] = c
		}
		require.EqualValues(t, 5, f.created.Load())

		got := make(chan *pool.Conn, 1)
		go func() {
			c, err := p.Acquire(ctx)
			if err == nil {
				got <- c
			}
			close(got)
		}()

		// The sixth caller must block, not create a sixth connection.
		select {
		case <-got:
			t.Fatal("sixth acquire should have blocked")
		case <-time.After(100 * time.Millisecond):
		}
		require.Equal(t, 1, p.Stats().Pending)

		p.Release(conns[0])

		var sixth *pool.Conn
		select {
		case sixth = <-got:
		case <-time.After(time.Second):
			t.Fatal("sixth acquire not unblocked by release")
		}
		require.NotNil(t, sixth)
		require.Equal(t, conns[0].ID(), sixth.ID())
		require.EqualValues(t, 5, f.created.Load(), "no sixth physical connection")
	})

	t.Run("waiters served in arrival order", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1})
		ctx := context.Background()

		held, err := p.Acquire(ctx)
		require.NoError(t, err)

		const n = 4
		order := make(chan int, n)
		var started sync.WaitGroup
		for i := 0; i < n; i++ {
			i := i
			started.Add(1)
			go func() {
				// Stagger arrival so queue order is deterministic.
				time.Sleep(time.Duration(i*20) * time.Millisecond)
				started.Done()
				c, err := p.Acquire(ctx)
				if err != nil {
					return
				}
				order <- i
				p.Release(c)
			}()
		}
		started.Wait()
		time.Sleep(100 * time.Millisecond) // let all waiters queue
		p.Release(held)

		for want := 0; want < n; want++ {
			select {
			case got := <-order:
				require.Equal(t, want, got, "FIFO order violated")
			case <-time.After(time.Second):
				t.Fatal("waiter starved")
			}
		}
	})

	t.Run("acquire times out with ErrPoolExhausted", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1, AcquireTimeout: 50 * time.Millisecond})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		defer p.Release(conn)

		_, err = p.Acquire(context.Background())
		require.ErrorIs(t, err, pool.ErrPoolExhausted)
		require.EqualValues(t, 1, p.Stats().Timeouts)
	})

	t.Run("caller deadline respected over pool default", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1, AcquireTimeout: time.Hour})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)
		defer p.Release(conn)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = p.Acquire(ctx)
		require.ErrorIs(t, err, pool.ErrPoolExhausted)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("draining pool fails acquires fast", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 2})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)

		drainDone := make(chan error, 1)
		go func() { drainDone <- p.Drain(context.Background()) }()

		require.Eventually(t, func() bool {
			_, err := p.Acquire(context.Background())
			return errors.Is(err, pool.ErrPoolDraining)
		}, time.Second, 5*time.Millisecond)

		// Borrowed connection can still be released; drain completes.
		p.Release(conn)
		require.NoError(t, <-drainDone)
	})

	t.Run("drain wakes queued waiters", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)

		waiterErr := make(chan error, 1)
		go func() {
			_, err := p.Acquire(context.Background())
			waiterErr <- err
		}()
		require.Eventually(t, func() bool {
			return p.Stats().Pending == 1
		}, time.Second, 5*time.Millisecond)

		go p.Release(conn)
		require.NoError(t, p.Drain(context.Background()))

		select {
		case err := <-waiterErr:
			// Depending on timing the waiter either got the released conn or
			// was woken into the draining state.
			if err != nil {
				require.ErrorIs(t, err, pool.ErrPoolDraining)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter not woken by drain")
		}
	})

	t.Run("drain timeout reports borrowed connections", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1})

		_, err := p.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, p.Drain(ctx), context.DeadlineExceeded)
	})

	t.Run("clear destroys idle connections", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 3})

		var conns []*pool.Conn
		for i := 0; i < 3; i++ {
			c, err := p.Acquire(context.Background())
			require.NoError(t, err)
			conns = append(conns, c)
		}
		for _, c := range conns {
			p.Release(c)
		}
		require.Equal(t, 3, p.Stats().Available)

		p.Clear()
		require.Equal(t, 0, p.Stats().Size)
		require.EqualValues(t, 3, f.destroyed.Load())
	})

	t.Run("close is terminal", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1})
		require.NoError(t, p.Close(context.Background()))

		_, err := p.Acquire(context.Background())
		require.ErrorIs(t, err, pool.ErrPoolClosed)
		require.Equal(t, "closed", p.Stats().State)
	})

	t.Run("release into drained pool destroys the connection", func(t *testing.T) {
		t.Parallel()

		f := &stubFactory{}
		p := pool.New("test", f, pool.Config{MaxSize: 1})

		conn, err := p.Acquire(context.Background())
		require.NoError(t, err)

		go func() { _ = p.Drain(context.Background()) }()
		require.Eventually(t, func() bool {
			return p.Stats().State == "draining"
		}, time.Second, 5*time.Millisecond)

		p.Release(conn)
		require.Eventually(t, func() bool {
			return f.destroyed.Load() == 1
		}, time.Second, 5*time.Millisecond)
		require.Equal(t, 0, p.Stats().Size)
	})
}

func TestPool_Prewarm(t *testing.T) {
	t.Parallel()

	f := &stubFactory{}
	p := pool.New("test", f, pool.Config{MaxSize: 5, MinIdle: 2})

	require.NoError(t, p.Prewarm(context.Background()))
	require.Equal(t, 2, p.Stats().Available)
	require.EqualValues(t, 2, f.created.Load())
}

func TestPool_ReleaseHook(t *testing.T) {
	t.Parallel()

	var hookCalls atomic.Int64
	f := &stubFactory{}
	p := pool.New("test", f, pool.Config{
		MaxSize: 1,
		ReleaseHook: func(_ context.Context, conn *pool.Conn) {
			require.NotNil(t, conn)
			hookCalls.Add(1)
		},
	})

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(conn)
	require.EqualValues(t, 1, hookCalls.Load())
}
