package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the pool lifecycle state. Transitions are monotonic:
// Active → Draining → Closed, never back.
type State int32

const (
	StateActive State = iota
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultAcquireTimeout bounds how long Acquire waits when the caller's
// context has no deadline of its own.
const DefaultAcquireTimeout = 30 * time.Second

// ReleaseHook runs at the start of Release, before validation, while the
// connection is still exclusively owned by the releasing caller. The
// coordinator layer uses it to roll back transactions left open.
type ReleaseHook func(ctx context.Context, conn *Conn)

// Config configures a Pool.
type Config struct {
	// MaxSize is the connection ceiling. Defaults to 10.
	MaxSize int

	// MinIdle is the number of connections Prewarm establishes up front.
	// Zero means fully lazy.
	MinIdle int

	// AcquireTimeout applies when the caller's context carries no
	// deadline. Defaults to DefaultAcquireTimeout.
	AcquireTimeout time.Duration

	// ReleaseHook is invoked on every Release before validation.
	ReleaseHook ReleaseHook

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// waiter is one queued Acquire call. It receives either a connection
// (ownership transferred) or nil (a slot freed up; retry the acquire
// loop). The channel is buffered so senders never block.
type waiter struct {
	ch chan *Conn
}

// Pool is a bounded FIFO connection pool for one server key.
type Pool struct {
	factory    Factory
	cfg        Config
	generation string
	serverKey  string
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	idle     []*Conn // FIFO: oldest release at the front
	waiters  []*waiter
	numOpen  int // created and not yet destroyed, including in-flight creates
	borrowed int

	drained     chan struct{}
	drainedOnce sync.Once

	acquires        atomic.Uint64
	timeouts        atomic.Uint64
	validationFails atomic.Uint64
	creates         atomic.Uint64
	destroys        atomic.Uint64
}

// New creates an Active pool with a fresh generation id. Connections are
// created lazily on Acquire; call Prewarm to establish MinIdle up front.
func New(serverKey string, factory Factory, cfg Config) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10
	}
	if cfg.MinIdle < 0 {
		cfg.MinIdle = 0
	}
	if cfg.MinIdle > cfg.MaxSize {
		cfg.MinIdle = cfg.MaxSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Pool{
		factory:    factory,
		cfg:        cfg,
		generation: uuid.NewString(),
		serverKey:  serverKey,
		logger:     cfg.Logger.With(slog.String("server_key", serverKey)),
		drained:    make(chan struct{}),
	}
}

// Generation returns the pool's generation id. Every connection the pool
// ever owns carries this id.
func (p *Pool) Generation() string { return p.generation }

// ServerKey returns the server key the pool serves.
func (p *Pool) ServerKey() string { return p.serverKey }

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Acquire returns a connection, serving callers strictly in arrival order.
// It hands out an idle connection when one passes validation, creates a
// new one while under MaxSize, and otherwise queues until a connection is
// released. Fails with ErrPoolExhausted (wrapping the wait duration) on
// timeout, and fast with ErrPoolDraining/ErrPoolClosed when the pool is
// shutting down.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.acquires.Add(1)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}
	start := time.Now()

	for {
		p.mu.Lock()

		switch p.state {
		case StateClosed:
			p.mu.Unlock()
			return nil, ErrPoolClosed
		case StateDraining:
			p.mu.Unlock()
			return nil, ErrPoolDraining
		}

		// Oldest idle connection first; invalid ones are destroyed and the
		// freed slot is refilled lazily by the create branch below.
		for len(p.idle) > 0 {
			conn := p.idle[0]
			p.idle = p.idle[1:]
			if p.factory.Validate(conn) {
				p.borrowed++
				conn.markAcquired()
				p.mu.Unlock()
				return conn, nil
			}
			p.numOpen--
			p.validationFails.Add(1)
			go p.destroy(conn)
		}

		if p.numOpen < p.cfg.MaxSize {
			p.numOpen++
			p.mu.Unlock()

			conn, err := p.factory.Create(ctx)
			if err != nil {
				p.mu.Lock()
				p.numOpen--
				p.wakeOneLocked()
				p.mu.Unlock()
				if errors.Is(err, context.DeadlineExceeded) {
					p.timeouts.Add(1)
				}
				return nil, err
			}
			p.creates.Add(1)
			conn.generation = p.generation

			p.mu.Lock()
			if p.state != StateActive {
				// Pool was drained or closed while we were connecting.
				state := p.state
				p.numOpen--
				p.mu.Unlock()
				go p.destroy(conn)
				if state == StateClosed {
					return nil, ErrPoolClosed
				}
				return nil, ErrPoolDraining
			}
			p.borrowed++
			conn.markAcquired()
			p.mu.Unlock()
			return conn, nil
		}

		// At capacity: join the FIFO queue.
		w := &waiter{ch: make(chan *Conn, 1)}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.removeWaiterLocked(w)
			p.mu.Unlock()

			// A release may have handed us a connection concurrently with
			// cancellation; give it back rather than leaking it.
			select {
			case conn := <-w.ch:
				if conn != nil {
					p.Release(conn)
				}
			default:
			}

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				p.timeouts.Add(1)
				return nil, fmt.Errorf("%w: waited %s for %q", ErrPoolExhausted, time.Since(start).Round(time.Millisecond), p.serverKey)
			}
			return nil, ctx.Err()

		case conn := <-w.ch:
			if conn == nil {
				continue // a slot freed up; retry the acquire loop
			}
			return conn, nil
		}
	}
}

// Release returns a connection to the pool. The release hook runs first
// (transaction safety net), then the connection is validated: a valid one
// is handed to the oldest waiter or queued idle, an invalid one is
// destroyed with its replacement left for the next Acquire to create.
// Releasing into a draining or closed pool destroys the connection but
// never fails the caller.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	if p.cfg.ReleaseHook != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		p.cfg.ReleaseHook(ctx, conn)
		cancel()
	}
	conn.markReleased()

	valid := p.factory.Validate(conn)

	p.mu.Lock()
	if p.borrowed > 0 {
		p.borrowed--
	}

	if p.state != StateActive || !valid {
		p.numOpen--
		if !valid {
			p.validationFails.Add(1)
		}
		p.wakeOneLocked()
		p.signalDrainedLocked()
		p.mu.Unlock()
		go p.destroy(conn)
		return
	}

	if w := p.popWaiterLocked(); w != nil {
		// Direct FIFO handoff: the connection stays borrowed, ownership
		// moves to the oldest waiter.
		p.borrowed++
		conn.markAcquired()
		p.mu.Unlock()
		w.ch <- conn
		return
	}

	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Drain stops new acquisitions and waits for borrowed connections to be
// released, up to ctx's deadline. Queued waiters are woken immediately and
// fail fast with ErrPoolDraining so callers can reroute.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.state == StateActive {
		p.state = StateDraining
		p.logger.Info("pool draining", slog.String("generation", p.generation))
	}
	for _, w := range p.waiters {
		w.ch <- nil
	}
	p.waiters = nil
	p.signalDrainedLocked()
	borrowed := p.borrowed
	p.mu.Unlock()

	if borrowed == 0 {
		return nil
	}

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool: drain of %q interrupted with %d connections still borrowed: %w", p.serverKey, p.Stats().Borrowed, ctx.Err())
	}
}

// Clear force-destroys all idle connections. Borrowed connections are
// untouched; they are destroyed individually on release once the pool is
// no longer active.
func (p *Pool) Clear() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.numOpen -= len(idle)
	p.mu.Unlock()

	for _, conn := range idle {
		p.destroy(conn)
	}
}

// Close drains (bounded by ctx), clears, and marks the pool Closed.
func (p *Pool) Close(ctx context.Context) error {
	err := p.Drain(ctx)
	if errors.Is(err, ErrPoolClosed) {
		return nil
	}
	p.Clear()

	p.mu.Lock()
	p.state = StateClosed
	p.mu.Unlock()

	p.logger.Info("pool closed", slog.String("generation", p.generation))
	return err
}

// Prewarm establishes up to MinIdle connections ahead of traffic.
// Best effort: the first failure stops the warm-up and is returned, but
// the pool remains usable.
func (p *Pool) Prewarm(ctx context.Context) error {
	for i := 0; i < p.cfg.MinIdle; i++ {
		p.mu.Lock()
		if p.state != StateActive || p.numOpen >= p.cfg.MinIdle {
			p.mu.Unlock()
			return nil
		}
		p.numOpen++
		p.mu.Unlock()

		conn, err := p.factory.Create(ctx)
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return err
		}
		p.creates.Add(1)
		conn.generation = p.generation

		p.mu.Lock()
		if p.state != StateActive {
			p.numOpen--
			p.mu.Unlock()
			go p.destroy(conn)
			return nil
		}
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
	return nil
}

// Stats is a snapshot of pool state and counters.
type Stats struct {
	ServerKey          string
	Generation         string
	State              string
	MaxSize            int
	Size               int // open connections (idle + borrowed + connecting)
	Available          int
	Borrowed           int
	Pending            int // queued waiters
	Acquires           uint64
	Timeouts           uint64
	ValidationFailures uint64
	Creates            uint64
	Destroys           uint64
}

// Stats returns a point-in-time snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		ServerKey:  p.serverKey,
		Generation: p.generation,
		State:      p.state.String(),
		MaxSize:    p.cfg.MaxSize,
		Size:       p.numOpen,
		Available:  len(p.idle),
		Borrowed:   p.borrowed,
		Pending:    len(p.waiters),
	}
	p.mu.Unlock()

	s.Acquires = p.acquires.Load()
	s.Timeouts = p.timeouts.Load()
	s.ValidationFailures = p.validationFails.Load()
	s.Creates = p.creates.Load()
	s.Destroys = p.destroys.Load()
	return s
}

// wakeOneLocked wakes the oldest waiter with a retry permit after a slot
// frees up. Caller holds p.mu.
func (p *Pool) wakeOneLocked() {
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- nil
	}
}

func (p *Pool) popWaiterLocked() *waiter {
	if len(p.waiters) == 0 {
		return nil
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	return w
}

func (p *Pool) removeWaiterLocked(target *waiter) {
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// signalDrainedLocked closes the drained channel once the last borrowed
// connection has come home during draining. Caller holds p.mu.
func (p *Pool) signalDrainedLocked() {
	if p.state == StateDraining && p.borrowed == 0 {
		p.drainedOnce.Do(func() { close(p.drained) })
	}
}

func (p *Pool) destroy(conn *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.factory.Destroy(ctx, conn); err != nil {
		p.logger.Warn("connection destroy failed",
			slog.String("conn_id", conn.ID()),
			slog.String("error", err.Error()),
		)
	}
	p.destroys.Add(1)
}
