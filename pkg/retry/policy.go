package retry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Default backoff shape. Tuned for flaky VPN links: quick first retry,
// then back off hard so a dead remote is not hammered.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultFactor       = 2.0
)

// Policy describes one retry strategy. Value object; copy freely.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay seeds the backoff sequence.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Factor is the exponential growth multiplier.
	Factor float64

	// RetryableFunc classifies errors. Nil means IsTransient.
	RetryableFunc func(error) bool
}

// DefaultPolicy returns the standard policy with transient-marker
// classification.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Factor:       DefaultFactor,
	}
}

// retryable applies the policy's classifier.
func (p Policy) retryable(err error) bool {
	if p.RetryableFunc != nil {
		return p.RetryableFunc(err)
	}
	return IsTransient(err)
}

// delay returns the capped backoff for the given zero-based attempt.
func (p Policy) delay(attempt int) time.Duration {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	factor := p.Factor
	if factor < 1 {
		factor = DefaultFactor
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt)))
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// transientMarkers are lowercase substrings of errors observed to
// self-resolve on VPN-linked SQL Server access. Kept deliberately
// message-based: they originate from several layers (OS, dialer, TDS)
// that share no error types.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"network is unreachable",
	"no such host",
	"bad connection",
	"unexpected eof",
	"eof",
	"prelogin",
	"login error",
	"tds stream",
	"deadlock",
}

// permanentMarkers override the transient set: failures that retrying can
// only hide. Checked first.
var permanentMarkers = []string{
	"login failed for user", // bad credentials, SQL error 18456
	"cannot open database",
	"invalid object name",
	"permission was denied",
}

// IsTransient reports whether err is worth retrying.
//
// Order of precedence: an error implementing Retryable() bool can approve
// itself (a connect timeout wraps context.DeadlineExceeded but is still
// retryable); a negative answer falls through to message classification,
// because a refused or reset handshake carries its transient nature in
// the message, not the phase. Bare context cancellation is never
// transient; permanent markers veto; transient markers approve.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var r interface{ Retryable() bool }
	if errors.As(err, &r) && r.Retryable() {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
