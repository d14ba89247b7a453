package task

import "errors"

var (
	// ErrNotInitialized is returned when using a registry before
	// Initialize or after Shutdown.
	ErrNotInitialized = errors.New("task: registry not initialized")

	// ErrDuplicateID is returned when registering a task id that is
	// already live.
	ErrDuplicateID = errors.New("task: task id already registered")

	// ErrEmptyID is returned when registering with an empty id.
	ErrEmptyID = errors.New("task: empty task id")
)
