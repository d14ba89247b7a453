// Package task tracks long-running logical tasks and their cooperative
// cancellation state, independent of pool internals.
//
// Workers register a task together with an abort handle (typically the
// CancelFunc of the context they run under). Cancelling a task signals
// the handle and moves the task to "cancelling"; the worker is expected
// to observe its context, stop, and confirm. If no confirmation arrives
// within the confirmation window, the task is deemed cancelled anyway;
// a worker stuck in a network call cannot be interrupted preemptively,
// but the operator still gets a truthful terminal state.
//
// Status transitions are monotonic: running → cancelling → cancelled, or
// running → completed. There is no way back.
//
// A background sweep reclaims forgotten tasks: running tasks past the
// retention ceiling are force-cancelled, terminal ones are dropped.
// Observers subscribed to a task receive every transition; a panicking
// observer is caught and logged, never allowed to break the emitting
// call.
//
// The Registry has an explicit Initialize/Shutdown lifecycle and no
// package-level state; the embedding application decides how many exist
// (normally one).
package task
