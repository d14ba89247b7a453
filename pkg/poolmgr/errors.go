package poolmgr

import "errors"

var (
	// ErrNotInitialized is returned when the manager is used before
	// Initialize or after Shutdown.
	ErrNotInitialized = errors.New("poolmgr: manager not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("poolmgr: manager already initialized")
	// ErrUnknownServer is returned when an operation names a server key
	// with no pool and no resolvable profile.
	ErrUnknownServer = errors.New("poolmgr: unknown server key")
	// ErrInvalidSchedule is returned when the renewal schedule
	// expression does not parse.
	ErrInvalidSchedule = errors.New("poolmgr: invalid renewal schedule")
)
