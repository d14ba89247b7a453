package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/dbcore/pkg/pool"
)

// DefaultBeginTimeout bounds the BEGIN round trip when the caller passes
// no timeout of its own.
const DefaultBeginTimeout = 15 * time.Second

// TxnState is the transaction lifecycle state.
type TxnState int32

const (
	TxnOpen TxnState = iota
	TxnCommitted
	TxnRolledBack
)

func (s TxnState) String() string {
	switch s {
	case TxnOpen:
		return "open"
	case TxnCommitted:
		return "committed"
	case TxnRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Txn is one transaction bound 1:1 to a pooled connection for its entire
// open lifetime. The bound connection must not run statements outside the
// transaction until it reaches a terminal state.
type Txn struct {
	id        string
	conn      *pool.Conn
	sqlTx     *sql.Tx
	startedAt time.Time

	mu      sync.Mutex
	state   TxnState
	claimed bool
}

// ID returns the transaction's identifier, used in logs.
func (t *Txn) ID() string { return t.id }

// Conn returns the bound connection.
func (t *Txn) Conn() *pool.Conn { return t.conn }

// Tx exposes the underlying *sql.Tx for the query layer.
func (t *Txn) Tx() *sql.Tx { return t.sqlTx }

// State returns the current transaction state.
func (t *Txn) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// claim takes exclusive ownership of the transaction's termination.
// The state stays Open during the terminating round trip and is set by
// setState once the outcome is known.
func (t *Txn) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxnOpen || t.claimed {
		return false
	}
	t.claimed = true
	return true
}

func (t *Txn) setState(to TxnState) {
	t.mu.Lock()
	t.state = to
	t.mu.Unlock()
}

// Coordinator tracks which connection holds which transaction.
// Safe for concurrent use. One coordinator serves all pools.
type Coordinator struct {
	mu     sync.Mutex
	byConn map[string]*Txn // conn ID → open transaction
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		byConn: make(map[string]*Txn),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin opens a transaction on conn, bounded by timeout (zero means
// DefaultBeginTimeout). Idempotent per connection: if conn already holds
// an open transaction, that transaction is returned unchanged.
func (c *Coordinator) Begin(ctx context.Context, conn *pool.Conn, timeout time.Duration) (*Txn, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	c.mu.Lock()
	if existing, ok := c.byConn[conn.ID()]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultBeginTimeout
	}
	beginCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sqlTx, err := conn.DB().BeginTx(beginCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w on %q: %w", ErrBeginFailed, conn.ServerKey(), err)
	}
	conn.RecordOperation()

	txn := &Txn{
		id:        uuid.NewString(),
		conn:      conn,
		sqlTx:     sqlTx,
		startedAt: time.Now(),
		state:     TxnOpen,
	}

	c.mu.Lock()
	// Two Begins racing on the same connection would be a caller bug (a
	// connection is exclusively owned), but keep the registry consistent.
	if existing, ok := c.byConn[conn.ID()]; ok {
		c.mu.Unlock()
		_ = sqlTx.Rollback()
		return existing, nil
	}
	c.byConn[conn.ID()] = txn
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "transaction started",
		slog.String("txn_id", txn.id),
		slog.String("conn_id", conn.ID()),
		slog.String("server_key", conn.ServerKey()),
	)
	return txn, nil
}

// Commit commits the transaction. The connection's registry entry is
// cleared whether or not the commit succeeds, so a failed commit never
// leaves the connection looking transactional. Commit failures surface.
func (c *Coordinator) Commit(ctx context.Context, txn *Txn) error {
	if txn == nil {
		return ErrTxFinished
	}
	defer c.clear(txn)

	if !txn.claim() {
		return fmt.Errorf("%w: %s", ErrTxFinished, txn.State())
	}
	txn.conn.RecordOperation()

	if err := txn.sqlTx.Commit(); err != nil {
		// The server aborts the transaction on a failed commit; the
		// connection is suspect either way.
		txn.setState(TxnRolledBack)
		txn.conn.MarkUnhealthy()
		return fmt.Errorf("%w on %q: %w", ErrCommitFailed, txn.conn.ServerKey(), err)
	}
	txn.setState(TxnCommitted)

	c.logger.DebugContext(ctx, "transaction committed",
		slog.String("txn_id", txn.id),
		slog.Duration("held", time.Since(txn.startedAt)),
	)
	return nil
}

// Rollback rolls the transaction back. The registry entry is cleared
// unconditionally, same as Commit.
func (c *Coordinator) Rollback(ctx context.Context, txn *Txn) error {
	if txn == nil {
		return ErrTxFinished
	}
	defer c.clear(txn)

	if !txn.claim() {
		return fmt.Errorf("%w: %s", ErrTxFinished, txn.State())
	}
	txn.conn.RecordOperation()
	txn.setState(TxnRolledBack)

	if err := txn.sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		txn.conn.MarkUnhealthy()
		return fmt.Errorf("%w on %q: %w", ErrRollbackFailed, txn.conn.ServerKey(), err)
	}

	c.logger.DebugContext(ctx, "transaction rolled back",
		slog.String("txn_id", txn.id),
		slog.Duration("held", time.Since(txn.startedAt)),
	)
	return nil
}

// Open returns the open transaction bound to conn, if any.
func (c *Coordinator) Open(conn *pool.Conn) (*Txn, bool) {
	if conn == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	txn, ok := c.byConn[conn.ID()]
	return txn, ok
}

// ReleaseHook returns the pool release hook that rolls back any
// transaction still open on a released connection. Exactly one rollback
// happens per leaked transaction; rollback failures are logged and
// swallowed so they cannot mask whatever made the caller bail out early.
func (c *Coordinator) ReleaseHook() pool.ReleaseHook {
	return func(ctx context.Context, conn *pool.Conn) {
		txn, ok := c.Open(conn)
		if !ok {
			return
		}

		c.logger.WarnContext(ctx, "connection released with open transaction, rolling back",
			slog.String("txn_id", txn.ID()),
			slog.String("conn_id", conn.ID()),
			slog.String("server_key", conn.ServerKey()),
		)
		if err := c.Rollback(ctx, txn); err != nil {
			c.logger.ErrorContext(ctx, "safety rollback failed",
				slog.String("txn_id", txn.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *Coordinator) clear(txn *Txn) {
	c.mu.Lock()
	// Only remove the entry if it still belongs to this transaction; a
	// replacement may already have been registered after a prior clear.
	if current, ok := c.byConn[txn.conn.ID()]; ok && current == txn {
		delete(c.byConn, txn.conn.ID())
	}
	c.mu.Unlock()
}
