package pool

import (
	"context"
	"fmt"
)

// Phase classifies where a connection attempt failed. Carried on ConnError
// so operators can tell a slow named-instance lookup from a refused
// handshake without reading driver internals.
type Phase string

const (
	// PhaseTimeout means the connect sequence (including named-instance
	// resolution) exceeded the profile's connect timeout.
	PhaseTimeout Phase = "connection_timeout"

	// PhaseError means the handshake failed outright: network unreachable,
	// refused, or a protocol/login failure.
	PhaseError Phase = "connection_error"
)

// ConnError reports a failed connection attempt with enough structured
// context for diagnostics: phase, server key, and the driver error code
// when the server got far enough to send one.
type ConnError struct {
	ServerKey string
	Phase     Phase
	Code      int32 // SQL Server error number, 0 if the failure was below TDS
	Err       error
}

func (e *ConnError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("pool: connect %s failed (%s, code %d): %v", e.ServerKey, e.Phase, e.Code, e.Err)
	}
	return fmt.Sprintf("pool: connect %s failed (%s): %v", e.ServerKey, e.Phase, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is known retryable from the
// phase alone. Timeouts over flaky links usually self-resolve. A false
// answer is not a veto: the retry layer falls back to classifying the
// wrapped error's message, which is where refused and reset handshakes
// identify themselves.
func (e *ConnError) Retryable() bool { return e.Phase == PhaseTimeout }

// Factory builds, validates, and destroys connections for one server
// profile. Implementations must be safe for concurrent use.
type Factory interface {
	// Create establishes one connection, honoring the profile's connect
	// timeout. Fails with *ConnError.
	Create(ctx context.Context) (*Conn, error)

	// Validate reports whether the connection may be re-issued to a
	// caller. False causes silent eviction.
	Validate(conn *Conn) bool

	// Destroy closes the connection, best effort within a bounded
	// timeout. Idempotent; must never panic past its own boundary.
	Destroy(ctx context.Context, conn *Conn) error
}
