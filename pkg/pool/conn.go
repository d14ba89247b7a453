package pool

import (
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn wraps one live server connection with pool metadata.
//
// The embedded *sql.DB is capped at a single physical connection (see
// SQLFactory), so this pool, not database/sql, is the only pooling
// layer, and each Conn maps 1:1 to one TDS session. A Conn belongs to
// exactly one pool generation for its whole life.
type Conn struct {
	id         string
	serverKey  string
	generation string
	createdAt  time.Time
	db         *sql.DB

	acquiredAt atomic.Int64 // unix nanos; zero while idle
	opCount    atomic.Int64
	unhealthy  atomic.Bool
	closed     atomic.Bool
}

// NewConn wraps db in pool metadata for the given server key.
// Intended for Factory implementations; the pool stamps the generation
// when it takes ownership.
func NewConn(serverKey string, db *sql.DB) *Conn {
	return &Conn{
		id:        uuid.NewString(),
		serverKey: serverKey,
		createdAt: time.Now(),
		db:        db,
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// ServerKey returns the server key this connection belongs to.
func (c *Conn) ServerKey() string { return c.serverKey }

// Generation returns the id of the pool generation that owns this
// connection. Empty until a pool takes ownership.
func (c *Conn) Generation() string { return c.generation }

// CreatedAt returns when the connection was established.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// DB returns the underlying single-connection database handle.
// Valid only between Acquire and Release; using it after Release is a
// caller bug.
func (c *Conn) DB() *sql.DB { return c.db }

// AcquiredAt returns when the connection was last handed to a caller,
// or the zero time while idle.
func (c *Conn) AcquiredAt() time.Time {
	ns := c.acquiredAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// OperationCount returns the number of statements executed on this
// connection since creation.
func (c *Conn) OperationCount() int64 { return c.opCount.Load() }

// RecordOperation increments the operation count. Called by the query
// layer once per statement; validation evicts the connection once the
// count crosses the configured ceiling.
func (c *Conn) RecordOperation() { c.opCount.Add(1) }

// MarkUnhealthy flags the connection for destruction on release.
// Called when a statement fails with a connection-class error.
func (c *Conn) MarkUnhealthy() { c.unhealthy.Store(true) }

// Healthy reports whether the connection has not been flagged for
// eviction.
func (c *Conn) Healthy() bool { return !c.unhealthy.Load() }

func (c *Conn) markAcquired() { c.acquiredAt.Store(time.Now().UnixNano()) }
func (c *Conn) markReleased() { c.acquiredAt.Store(0) }
