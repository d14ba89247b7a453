// Package retry wraps operations with classification-based retry and
// capped exponential backoff.
//
// Long-haul, VPN-linked database access produces bursty transient
// failures (timeouts, resets, half-open sockets, pre-login handshake
// hiccups) that should be invisible to callers. Authentication and
// schema errors, on the other hand, must fail fast rather than be masked
// by retries. The Policy's retryable predicate draws that line; the
// default classifier combines an error-implemented Retryable() method
// with a configurable set of transient message markers.
//
// Backoff sleeps are cancellable: a signaled context interrupts a pending
// sleep immediately and fails the call with ErrCancelled. Cancellation is
// checked before each attempt and never counts against the retry budget.
//
//	err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context, attempt int) error {
//	    return replicate(ctx, batch)
//	})
package retry
