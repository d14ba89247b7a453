package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when the context is signaled before or between
// attempts, or during a backoff sleep. Joined with the context's error.
var ErrCancelled = errors.New("retry: operation cancelled")

// Operation is one retryable unit of work. attempt is zero-based.
type Operation func(ctx context.Context, attempt int) error

// Do runs op under the policy.
//
// Loop contract: the context is checked before every attempt; a signaled
// context fails immediately with ErrCancelled and does not consume a
// retry. A non-retryable error surfaces unchanged on the spot. A
// retryable error sleeps min(initial*factor^attempt, max), interruptibly,
// then tries again until the budget is spent; the last error is returned
// wrapped with the attempt count.
func Do(ctx context.Context, p Policy, op Operation) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return errors.Join(ErrCancelled, ctx.Err())
		default:
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		if !p.retryable(err) {
			return err
		}
		if attempt >= maxRetries {
			return fmt.Errorf("retry: gave up after %d attempts: %w", attempt+1, err)
		}

		if serr := sleep(ctx, p.delay(attempt)); serr != nil {
			return serr
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// sleep waits d or until ctx is signaled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.Join(ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
