package profile

import "errors"

var (
	// ErrProfileNotFound is returned by providers when no profile exists
	// for the requested server key. Treated as a configuration error by
	// the connection layer: surfaced immediately, never retried.
	ErrProfileNotFound = errors.New("profile: server profile not found")

	// ErrInvalidProfile is returned when a profile is missing required
	// fields (host, database, or credentials).
	ErrInvalidProfile = errors.New("profile: invalid server profile")
)
