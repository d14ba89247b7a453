package dbcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ordersync/dbcore/pkg/pool"
	"github.com/ordersync/dbcore/pkg/poolmgr"
	"github.com/ordersync/dbcore/pkg/profile"
	"github.com/ordersync/dbcore/pkg/query"
	"github.com/ordersync/dbcore/pkg/retry"
	"github.com/ordersync/dbcore/pkg/task"
	"github.com/ordersync/dbcore/pkg/tx"
)

// Type aliases - public API
type (
	// ServerProfile describes how to reach one server.
	ServerProfile = profile.ServerProfile
	// Provider loads server profiles from the configuration store.
	Provider = profile.Provider
	// Conn is a pooled connection exclusively owned by its borrower.
	Conn = pool.Conn
	// Txn is a transaction bound to one pooled connection.
	Txn = tx.Txn
	// Params maps statement parameter names to values.
	Params = query.Params
	// Hints maps parameter names to SQL type hints.
	Hints = query.Hints
	// ResultSet is the normalized outcome of a statement.
	ResultSet = query.ResultSet
	// TaskMetadata describes a registered long-running task.
	TaskMetadata = task.Metadata
	// TaskStatus reports a task's cancellation state.
	TaskStatus = task.StatusInfo
	// RetryPolicy tunes the transient-failure retry loop.
	RetryPolicy = retry.Policy
)

// Service composes the pools, transaction coordinator, query executor,
// and cancellation registry behind one lifecycle. Construct with New,
// then Initialize before use and Shutdown when done; the zero value is
// not usable.
type Service struct {
	log    *slog.Logger
	policy retry.Policy

	mgr   *poolmgr.Manager
	txc   *tx.Coordinator
	exec  *query.Executor
	tasks *task.Registry

	txTimeout time.Duration

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// New builds a Service over the given profile provider. Nothing is
// dialed until Initialize.
func New(provider Provider, opts ...Option) *Service {
	cfg := newOptions(opts...)

	s := &Service{
		log:       cfg.log,
		policy:    cfg.policy,
		txTimeout: cfg.txTimeout,
	}

	s.txc = tx.NewCoordinator(tx.WithLogger(cfg.log))

	mgrOpts := []poolmgr.Option{
		poolmgr.WithLogger(cfg.log),
		poolmgr.WithConfig(cfg.pool),
		poolmgr.WithReleaseHook(s.txc.ReleaseHook()),
	}
	if cfg.factoryFn != nil {
		mgrOpts = append(mgrOpts, poolmgr.WithFactoryFunc(cfg.factoryFn))
	}
	s.mgr = poolmgr.New(provider, mgrOpts...)

	s.exec = query.NewExecutor(
		query.WithLogger(cfg.log),
		query.WithMetadataTTL(cfg.metadataTTL),
	)

	s.tasks = task.NewRegistry(
		task.WithLogger(cfg.log),
		task.WithConfirmationWindow(cfg.taskConfirmation),
		task.WithRetention(cfg.taskRetention),
	)

	return s
}

// Initialize starts the background pool maintenance and the task
// registry. Must be called exactly once before any other method.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotInitialized
	}
	if s.initialized {
		return ErrAlreadyInitialized
	}

	if err := s.mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("dbcore: initialize pool manager: %w", err)
	}
	s.tasks.Initialize()
	s.initialized = true

	s.log.InfoContext(ctx, "connection service initialized")
	return nil
}

// Shutdown cancels running tasks, stops background maintenance, and
// closes every pool. The service is unusable afterwards.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized || s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.closed = true
	s.initialized = false
	s.mu.Unlock()

	cancelled := s.tasks.CancelAll("service shutdown")
	if cancelled > 0 {
		s.log.InfoContext(ctx, "cancelled running tasks for shutdown",
			slog.Int("count", cancelled))
	}
	s.tasks.Shutdown()
	s.exec.Close()

	if err := s.mgr.Shutdown(ctx); err != nil && !errors.Is(err, poolmgr.ErrNotInitialized) {
		return fmt.Errorf("dbcore: shutdown pool manager: %w", err)
	}
	s.log.InfoContext(ctx, "connection service shut down")
	return nil
}

func (s *Service) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Logger exposes the service logger so embedding applications log in
// the same stream.
func (s *Service) Logger() *slog.Logger {
	return s.log
}
