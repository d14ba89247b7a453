package poolmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ordersync/dbcore/pkg/pool"
	"github.com/ordersync/dbcore/pkg/profile"
)

// FactoryFunc builds a connection factory for one server profile.
// Replaceable in tests to avoid real network handshakes.
type FactoryFunc func(p *profile.ServerProfile) pool.Factory

// Manager owns every per-server pool in the process. All callers
// requesting the same server key share one pool; the manager is safe
// for concurrent use.
type Manager struct {
	provider    profile.Provider
	cfg         Config
	log         *slog.Logger
	factoryFn   FactoryFunc
	releaseHook pool.ReleaseHook
	schedule    cron.Schedule

	mu          sync.Mutex
	entries     map[string]*entry
	initialized bool
	closed      bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// entry tracks one server key: its live pool generation, generations
// being retired, and health bookkeeping.
type entry struct {
	serverKey string

	mu        sync.Mutex
	factory   pool.Factory
	current   *pool.Pool
	retiring  map[string]*pool.Pool
	errCount  int
	lastCheck time.Time

	renewals atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for background pool events.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithReleaseHook installs a hook run on every connection release,
// before validation. The transaction coordinator uses it for its
// rollback safety net.
func WithReleaseHook(hook pool.ReleaseHook) Option {
	return func(m *Manager) {
		m.releaseHook = hook
	}
}

// WithFactoryFunc replaces how connection factories are built from
// profiles. Intended for tests.
func WithFactoryFunc(fn FactoryFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.factoryFn = fn
		}
	}
}

// New creates a Manager over the given profile provider. The manager
// is inert until Initialize.
func New(provider profile.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		cfg:      DefaultConfig(),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		entries:  make(map[string]*entry),
		stop:     make(chan struct{}),
	}
	m.factoryFn = m.defaultFactory
	for _, opt := range opts {
		opt(m)
	}
	m.cfg.applyDefaults()
	return m
}

func (m *Manager) defaultFactory(p *profile.ServerProfile) pool.Factory {
	return pool.NewSQLFactory(p,
		pool.WithMaxConnAge(m.cfg.MaxConnAge),
		pool.WithMaxOperations(m.cfg.MaxOperations),
		pool.WithFactoryLogger(m.log),
	)
}

// Initialize validates the renewal schedule and starts the background
// health and renewal loops. Must be called exactly once before any
// Acquire.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrNotInitialized
	}
	if m.initialized {
		return ErrAlreadyInitialized
	}

	schedule, err := cron.ParseStandard(m.cfg.RenewalSchedule)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, m.cfg.RenewalSchedule, err)
	}
	m.schedule = schedule
	m.initialized = true

	m.wg.Add(2)
	go m.healthLoop()
	go m.renewalLoop()

	m.log.InfoContext(ctx, "pool manager initialized",
		slog.Duration("health_interval", m.cfg.HealthInterval),
		slog.String("renewal_schedule", m.cfg.RenewalSchedule))
	return nil
}

// Shutdown stops the background loops and closes every pool, current
// and retiring. The manager is unusable afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized || m.closed {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	m.closed = true
	m.initialized = false
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()

	var errs []error
	for _, e := range entries {
		e.mu.Lock()
		pools := make([]*pool.Pool, 0, len(e.retiring)+1)
		if e.current != nil {
			pools = append(pools, e.current)
		}
		for _, p := range e.retiring {
			pools = append(pools, p)
		}
		e.mu.Unlock()

		for _, p := range pools {
			if err := p.Close(ctx); err != nil && !errors.Is(err, pool.ErrPoolClosed) {
				errs = append(errs, fmt.Errorf("poolmgr: close pool %q gen %s: %w", e.serverKey, p.Generation(), err))
			}
		}
	}
	m.log.InfoContext(ctx, "pool manager shut down", slog.Int("pools", len(entries)))
	return errors.Join(errs...)
}

// Acquire borrows a connection for serverKey, creating the pool from
// the provider's profile on first use. Pool exhaustion triggers a
// single reactive renewal before the error surfaces; a renewal swap
// racing the acquire is retried against the new generation.
func (m *Manager) Acquire(ctx context.Context, serverKey string) (*pool.Conn, error) {
	e, err := m.entryFor(ctx, serverKey)
	if err != nil {
		return nil, err
	}

	p := e.currentPool()
	conn, err := m.poolAcquire(ctx, p)
	if err == nil {
		return conn, nil
	}

	switch {
	case errors.Is(err, pool.ErrPoolExhausted):
		m.log.WarnContext(ctx, "pool exhausted, attempting renewal",
			slog.String("server_key", serverKey), slog.String("error", err.Error()))
		if rerr := m.Renew(ctx, serverKey, "pool exhausted"); rerr != nil {
			return nil, err
		}
		return m.poolAcquire(ctx, e.currentPool())

	case errors.Is(err, pool.ErrPoolDraining), errors.Is(err, pool.ErrPoolClosed):
		if np := e.currentPool(); np != p {
			return m.poolAcquire(ctx, np)
		}
		return nil, err
	}
	return nil, err
}

// poolAcquire bounds one acquire by the configured timeout. A tighter
// caller deadline still wins.
func (m *Manager) poolAcquire(ctx context.Context, p *pool.Pool) (*pool.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()
	return p.Acquire(actx)
}

// Release returns a connection to the generation that issued it. A
// connection from an already-retired generation is destroyed.
func (m *Manager) Release(conn *pool.Conn) {
	if conn == nil {
		return
	}

	m.mu.Lock()
	e := m.entries[conn.ServerKey()]
	m.mu.Unlock()
	if e == nil {
		m.log.Warn("release for unknown server key, destroying connection",
			slog.String("server_key", conn.ServerKey()), slog.String("conn_id", conn.ID()))
		if db := conn.DB(); db != nil {
			db.Close() //nolint:errcheck
		}
		return
	}

	e.mu.Lock()
	var target *pool.Pool
	factory := e.factory
	if e.current != nil && e.current.Generation() == conn.Generation() {
		target = e.current
	} else if p, ok := e.retiring[conn.Generation()]; ok {
		target = p
	}
	e.mu.Unlock()

	if target != nil {
		target.Release(conn)
		return
	}

	// Generation already fully retired; the straggler is closed
	// directly instead of rejoining any pool.
	m.log.Debug("release for retired generation, destroying connection",
		slog.String("server_key", conn.ServerKey()),
		slog.String("generation", conn.Generation()))
	if err := factory.Destroy(context.Background(), conn); err != nil {
		m.log.Warn("destroy straggler connection",
			slog.String("server_key", conn.ServerKey()), slog.String("error", err.Error()))
	}
}

// Stats reports per-server statistics of the live pool generation plus
// the number of generations still retiring.
func (m *Manager) Stats() map[string]PoolStats {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make(map[string]PoolStats, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		var ps PoolStats
		if e.current != nil {
			ps.Pool = e.current.Stats()
		}
		ps.RetiringGenerations = len(e.retiring)
		ps.ConsecutiveErrors = e.errCount
		ps.LastHealthCheck = e.lastCheck
		ps.Renewals = e.renewals.Load()
		e.mu.Unlock()
		out[e.serverKey] = ps
	}
	return out
}

// PoolStats extends pool statistics with manager-level bookkeeping.
type PoolStats struct {
	Pool                pool.Stats
	RetiringGenerations int
	ConsecutiveErrors   int
	LastHealthCheck     time.Time
	Renewals            int64
}

// entryFor returns the entry for serverKey, creating its first pool
// generation from the provider's profile on first use. The provider
// is consulted without holding the manager lock.
func (m *Manager) entryFor(ctx context.Context, serverKey string) (*entry, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if e, ok := m.entries[serverKey]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	prof, err := m.provider.ServerProfile(ctx, serverKey)
	if err != nil {
		return nil, fmt.Errorf("poolmgr: load profile for %q: %w", serverKey, err)
	}
	if err := prof.Validate(); err != nil {
		return nil, fmt.Errorf("poolmgr: profile for %q: %w", serverKey, err)
	}

	factory := m.factoryFn(prof)
	newPool := m.buildPool(serverKey, factory)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		newPool.Close(context.Background()) //nolint:errcheck
		return nil, ErrNotInitialized
	}
	if e, ok := m.entries[serverKey]; ok {
		// Lost the creation race; discard the extra pool.
		newPool.Close(context.Background()) //nolint:errcheck
		return e, nil
	}

	e := &entry{
		serverKey: serverKey,
		factory:   factory,
		current:   newPool,
		retiring:  make(map[string]*pool.Pool),
		lastCheck: time.Now(),
	}
	m.entries[serverKey] = e
	m.log.InfoContext(ctx, "created pool",
		slog.String("server_key", serverKey),
		slog.String("generation", newPool.Generation()),
		slog.Int("max_size", m.cfg.MaxPoolSize))
	return e, nil
}

func (m *Manager) buildPool(serverKey string, factory pool.Factory) *pool.Pool {
	return pool.New(serverKey, factory, pool.Config{
		MaxSize:        m.cfg.MaxPoolSize,
		MinIdle:        m.cfg.MinIdle,
		AcquireTimeout: m.cfg.AcquireTimeout,
		ReleaseHook:    m.releaseHook,
		Logger:         m.log,
	})
}

func (e *entry) currentPool() *pool.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}
