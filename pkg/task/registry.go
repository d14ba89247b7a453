package task

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Registry timing defaults.
const (
	// DefaultConfirmationWindow is how long a cancelling task may stay
	// unconfirmed before it is deemed cancelled.
	DefaultConfirmationWindow = 30 * time.Second

	// DefaultRetention is how long a task record is kept: running tasks
	// older than this are force-cancelled, terminal ones are dropped.
	DefaultRetention = time.Hour

	// DefaultSweepInterval is how often the reclaim sweep runs.
	DefaultSweepInterval = time.Minute
)

// Registry tracks live tasks. Zero value is unusable; construct with
// NewRegistry and call Initialize before use.
type Registry struct {
	confirmWindow time.Duration
	retention     time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*entry
	started bool
	closed  bool

	stop chan struct{}
	done chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfirmationWindow sets the cancel-confirmation deadline.
func WithConfirmationWindow(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.confirmWindow = d
		}
	}
}

// WithRetention sets the record retention ceiling.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithSweepInterval sets how often forgotten tasks are reclaimed.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithLogger sets the registry logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a registry with the given options.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		confirmWindow: DefaultConfirmationWindow,
		retention:     DefaultRetention,
		sweepInterval: DefaultSweepInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tasks:         make(map[string]*entry),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize starts the background sweep. Idempotent.
func (r *Registry) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.sweepLoop()
}

// Shutdown stops the sweep, cancels pending confirmation timers, and
// renders the registry unusable. Idempotent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	for _, e := range r.tasks {
		if e.confirmTimer != nil {
			e.confirmTimer.Stop()
		}
	}
	r.tasks = make(map[string]*entry)
	r.mu.Unlock()

	if started {
		close(r.stop)
		<-r.done
	}
}

// Register adds a running task. The abort handle is invoked when the task
// is cancelled; nil is allowed for tasks that poll status instead.
func (r *Registry) Register(id string, abort AbortHandle, meta Metadata) error {
	if id == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.started {
		return ErrNotInitialized
	}
	if _, exists := r.tasks[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}

	now := time.Now()
	r.tasks[id] = &entry{
		id:           id,
		status:       StatusRunning,
		metadata:     meta,
		abort:        abort,
		registeredAt: now,
		lastUpdate:   now,
	}
	r.logger.Debug("task registered",
		slog.String("task_id", id),
		slog.String("type", meta.Type),
		slog.String("component", meta.Component),
	)
	return nil
}

// Cancel requests cooperative cancellation. Signals the abort handle,
// moves the task to cancelling, and arms the confirmation deadline.
// A nonexistent id yields {Success:false}, never an error.
func (r *Registry) Cancel(id, reason string) Result {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return Result{Success: false, Message: fmt.Sprintf("no such task %q", id)}
	}
	if e.status.Terminal() {
		status := e.status
		r.mu.Unlock()
		return Result{Success: false, Message: fmt.Sprintf("task %q already %s", id, status)}
	}
	if e.status == StatusCancelling {
		r.mu.Unlock()
		return Result{Success: true, Message: fmt.Sprintf("task %q already cancelling", id)}
	}

	abort := e.abort
	notify := r.transitionLocked(e, StatusCancelling, reason)
	e.confirmTimer = time.AfterFunc(r.confirmWindow, func() { r.autoConfirm(id) })
	r.mu.Unlock()

	if abort != nil {
		abort()
	}
	notify()

	return Result{Success: true, Message: fmt.Sprintf("cancellation requested for %q", id)}
}

// ConfirmCancelled records the worker's acknowledgement that it stopped.
func (r *Registry) ConfirmCancelled(id string) bool {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok || e.status != StatusCancelling {
		r.mu.Unlock()
		return false
	}
	if e.confirmTimer != nil {
		e.confirmTimer.Stop()
		e.confirmTimer = nil
	}
	notify := r.transitionLocked(e, StatusCancelled, e.reason)
	r.mu.Unlock()

	notify()
	return true
}

// Complete marks a running task as finished. Reports false when the task
// does not exist or already left the running state.
func (r *Registry) Complete(id string) bool {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok || e.status != StatusRunning {
		r.mu.Unlock()
		return false
	}
	notify := r.transitionLocked(e, StatusCompleted, "")
	r.mu.Unlock()

	notify()
	return true
}

// Status returns a snapshot of the task, or Exists=false.
func (r *Registry) Status(id string) StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return StatusInfo{Exists: false, ID: id}
	}
	return e.snapshot()
}

// List returns snapshots of all tracked tasks.
func (r *Registry) List() []StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatusInfo, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e.snapshot())
	}
	return out
}

// Subscribe attaches an observer to a task. The observer receives every
// subsequent transition. Reports false when the task does not exist.
func (r *Registry) Subscribe(id string, obs Observer) bool {
	if obs == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return false
	}
	e.observers = append(e.observers, obs)
	return true
}

// CancelAll cancels every non-terminal task and returns how many were
// signaled. Used at shutdown and by the operator's emergency stop.
func (r *Registry) CancelAll(reason string) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tasks))
	for id, e := range r.tasks {
		if !e.status.Terminal() && e.status != StatusCancelling {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		if res := r.Cancel(id, reason); res.Success {
			n++
		}
	}
	return n
}

// transitionLocked moves e to the target status if the move is monotonic
// and returns the notification closure to run after unlocking. Caller
// holds r.mu.
func (r *Registry) transitionLocked(e *entry, to Status, reason string) func() {
	if to.rank() <= e.status.rank() {
		return func() {}
	}
	e.status = to
	e.lastUpdate = time.Now()
	if reason != "" {
		e.reason = reason
	}

	id := e.id
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	finalReason := e.reason

	return func() {
		for _, obs := range observers {
			r.notify(obs, id, to, finalReason)
		}
	}
}

// notify runs one observer, catching panics so a broken observer cannot
// break the emitting call.
func (r *Registry) notify(obs Observer, id string, status Status, reason string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task observer panicked",
				slog.String("task_id", id),
				slog.Any("panic", p),
			)
		}
	}()
	obs(id, status, reason)
}

// autoConfirm fires when the confirmation window elapses without the
// worker confirming: the task is deemed cancelled.
func (r *Registry) autoConfirm(id string) {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok || e.status != StatusCancelling {
		r.mu.Unlock()
		return
	}
	e.confirmTimer = nil
	notify := r.transitionLocked(e, StatusCancelled, "confirmation window elapsed")
	r.mu.Unlock()

	r.logger.Warn("task cancellation unconfirmed, deeming cancelled",
		slog.String("task_id", id),
	)
	notify()
}

// sweepLoop reclaims forgotten tasks until Shutdown.
func (r *Registry) sweepLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()

	r.mu.Lock()
	var stale []string
	dropped := 0
	for id, e := range r.tasks {
		age := now.Sub(e.lastUpdate)
		switch {
		case e.status.Terminal() && age > r.retention:
			delete(r.tasks, id)
			dropped++
		case e.status == StatusRunning && now.Sub(e.registeredAt) > r.retention:
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.logger.Warn("task exceeded retention, force-cancelling", slog.String("task_id", id))
		r.Cancel(id, "retention ceiling exceeded")
	}
	if dropped > 0 {
		r.logger.Debug("task sweep reclaimed records", slog.Int("dropped", dropped))
	}
}
