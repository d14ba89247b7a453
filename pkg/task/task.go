package task

import (
	"context"
	"time"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// rank orders statuses for monotonicity checks. Equal-rank terminal
// states are unreachable from each other.
func (s Status) rank() int {
	switch s {
	case StatusRunning:
		return 0
	case StatusCancelling:
		return 1
	default:
		return 2
	}
}

// Metadata describes what a task is, for operators listing tasks.
type Metadata struct {
	// Type is the task kind ("replication", "bulk-transfer", ...).
	Type string
	// Component is the subsystem that registered the task.
	Component string
	// ServerKey is the target server, when the task is server-bound.
	ServerKey string
}

// AbortHandle signals a task to stop. Usually a context.CancelFunc.
type AbortHandle func()

// Result is the structured outcome of a cancel request. Cancelling a
// task that does not exist is not an error: the caller learns about it
// through Success=false.
type Result struct {
	Success bool
	Message string
}

// StatusInfo is a point-in-time snapshot of one task.
type StatusInfo struct {
	Exists       bool
	ID           string
	Status       Status
	Metadata     Metadata
	Reason       string
	RegisteredAt time.Time
	LastUpdate   time.Time
}

// Observer receives task state transitions.
type Observer func(id string, status Status, reason string)

// entry is the registry's mutable record for one task.
type entry struct {
	id           string
	status       Status
	metadata     Metadata
	reason       string
	registeredAt time.Time
	lastUpdate   time.Time
	abort        AbortHandle
	observers    []Observer
	confirmTimer *time.Timer
}

func (e *entry) snapshot() StatusInfo {
	return StatusInfo{
		Exists:       true,
		ID:           e.id,
		Status:       e.status,
		Metadata:     e.metadata,
		Reason:       e.reason,
		RegisteredAt: e.registeredAt,
		LastUpdate:   e.lastUpdate,
	}
}

// WithAbort derives a cancellable context and returns its cancel function
// as an AbortHandle. Convenience for the common registration pattern.
func WithAbort(ctx context.Context) (context.Context, AbortHandle) {
	child, cancel := context.WithCancel(ctx)
	return child, AbortHandle(cancel)
}
