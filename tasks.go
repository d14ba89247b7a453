package dbcore

import (
	"context"

	"github.com/ordersync/dbcore/pkg/logger"
	"github.com/ordersync/dbcore/pkg/task"
)

// RegisterTask registers a long-running job under id and returns a
// derived context that is cancelled when the task is cancelled. The
// worker runs its database work on that context so cancellation stops
// further retries and pending backoff sleeps; an in-flight statement
// still runs to completion.
//
// The worker must call CompleteTask on normal finish and
// ConfirmTaskCancelled once it has observed cancellation and stopped.
func (s *Service) RegisterTask(ctx context.Context, id string, meta TaskMetadata) (context.Context, error) {
	if err := s.ready(); err != nil {
		return ctx, err
	}

	taskCtx, abort := task.WithAbort(ctx)
	if err := s.tasks.Register(id, abort, meta); err != nil {
		abort()
		return ctx, err
	}
	return logger.WithTaskID(taskCtx, id), nil
}

// CancelTask requests cooperative cancellation of a running task.
// Cancelling an unknown id reports Success=false, never an error. The
// task moves to cancelled when the worker confirms, or automatically
// once the confirmation window elapses.
func (s *Service) CancelTask(id, reason string) task.Result {
	if err := s.ready(); err != nil {
		return task.Result{Success: false, Message: err.Error()}
	}
	return s.tasks.Cancel(id, reason)
}

// CompleteTask marks a task as finished normally.
func (s *Service) CompleteTask(id string) bool {
	if err := s.ready(); err != nil {
		return false
	}
	return s.tasks.Complete(id)
}

// ConfirmTaskCancelled acknowledges that a cancelled task's worker has
// stopped.
func (s *Service) ConfirmTaskCancelled(id string) bool {
	if err := s.ready(); err != nil {
		return false
	}
	return s.tasks.ConfirmCancelled(id)
}

// GetTaskStatus reports a task's current state. Exists is false for
// unknown or already-reclaimed ids.
func (s *Service) GetTaskStatus(id string) TaskStatus {
	if err := s.ready(); err != nil {
		return TaskStatus{}
	}
	return s.tasks.Status(id)
}

// ListTasks returns the status of every tracked task.
func (s *Service) ListTasks() []TaskStatus {
	if err := s.ready(); err != nil {
		return nil
	}
	return s.tasks.List()
}

// SubscribeTask registers an observer for a task's state transitions.
// Observer panics are isolated and logged.
func (s *Service) SubscribeTask(id string, obs task.Observer) bool {
	if err := s.ready(); err != nil {
		return false
	}
	return s.tasks.Subscribe(id, obs)
}

// CancelAllTasks requests cancellation of every running task and
// reports how many were signalled.
func (s *Service) CancelAllTasks(reason string) int {
	if err := s.ready(); err != nil {
		return 0
	}
	return s.tasks.CancelAll(reason)
}
