package dbcore

import (
	"errors"

	"github.com/ordersync/dbcore/pkg/pool"
	"github.com/ordersync/dbcore/pkg/profile"
	"github.com/ordersync/dbcore/pkg/query"
	"github.com/ordersync/dbcore/pkg/retry"
)

var (
	// ErrNotInitialized is returned when the service is used before
	// Initialize or after Shutdown.
	ErrNotInitialized = errors.New("dbcore: service not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("dbcore: service already initialized")
)

// Re-exported sentinels so callers match errors without importing the
// subpackages.
var (
	// ErrProfileNotFound means the provider has no profile for the key.
	ErrProfileNotFound = profile.ErrProfileNotFound
	// ErrPoolExhausted means an acquire timed out waiting for a free
	// connection, after one renewal attempt.
	ErrPoolExhausted = pool.ErrPoolExhausted
	// ErrPoolDraining means the pool is mid-renewal or shutting down.
	ErrPoolDraining = pool.ErrPoolDraining
	// ErrCancelled means the caller's context fired mid-operation.
	ErrCancelled = retry.ErrCancelled
	// ErrNilQuerier means a nil connection or transaction was supplied
	// to a statement method.
	ErrNilQuerier = query.ErrNilQuerier
)

// IsTransient reports whether an error is classified as likely to
// self-resolve, the same classification the retry loop uses.
func IsTransient(err error) bool {
	return retry.IsTransient(err)
}
