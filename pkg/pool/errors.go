package pool

import "errors"

var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("pool: pool is closed")

	// ErrPoolDraining is returned by Acquire while the pool is draining
	// for renewal or shutdown. Callers should re-resolve the pool and
	// retry against the replacement generation.
	ErrPoolDraining = errors.New("pool: pool is draining")

	// ErrPoolExhausted is returned when Acquire gives up waiting for a
	// connection. Wraps in-context details about the wait.
	ErrPoolExhausted = errors.New("pool: connection pool exhausted")

	// ErrNilConn is returned when a nil connection is handed to the pool.
	ErrNilConn = errors.New("pool: nil connection")

	// ErrConnInvalid marks a connection rejected by factory validation.
	// Never surfaced to callers: the connection is silently destroyed and
	// lazily replaced.
	ErrConnInvalid = errors.New("pool: connection failed validation")
)
