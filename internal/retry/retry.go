package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/parley-sh/parley/pkg/schema"
)

// Defaults applied by Policy.normalized when a field is zero.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// Policy is a bounded-retry-with-backoff configuration for suspending calls.
// Backoff is exponential: delay * 2^attempt, capped at MaxDelay.
type Policy struct {
	MaxAttempts int           // total attempts including the first (default 3)
	Delay       time.Duration // base backoff delay (default 500ms)
	MaxDelay    time.Duration // backoff cap (default 30s)
	Timeout     time.Duration // per-attempt deadline (0 = none)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Do runs fn under the policy: each attempt gets its own deadline (when
// Timeout is set), non-retryable errors surface immediately, and exhausting
// the attempt budget returns the last error. The backoff wait respects ctx.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := WaitForBackoff(ctx, ComputeBackoff(p, attempt-1)); err != nil {
				return err
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		// Promote a per-attempt deadline into the typed timeout error so the
		// caller sees what actually happened.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = schema.NewError(schema.ErrCodeTimeout, "operation timed out").WithCause(err)
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		if !IsRetryableError(err) {
			return lastErr
		}
	}
	return lastErr
}

// IsRetryableError classifies whether an error should be retried.
// Retryable by default: network errors, timeouts, context.DeadlineExceeded.
// Non-retryable: validation errors, rejections, typed FlowErrors with final codes.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Deadline exceeded means a per-call timeout, which is retryable.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Cancellation means the run is shutting down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// FlowError checks its own code.
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr.IsRetryable()
	}

	// Network errors are retryable.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common transient patterns.
	msg := strings.ToLower(err.Error())
	transient := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"too many requests",
	}
	for _, p := range transient {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable. The attempt cap bounds the damage.
	return true
}

// ComputeBackoff calculates the delay before the retry following the given
// zero-based attempt: delay * 2^attempt, capped at MaxDelay.
func ComputeBackoff(p Policy, attempt int) time.Duration {
	p = p.normalized()

	delay := p.Delay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// WaitForBackoff sleeps for the given duration or returns early if the
// context is cancelled during the wait.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
