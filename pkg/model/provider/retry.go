package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tandem-run/tandem/pkg/model/provider/base"
)

const (
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
)

// RetryPolicy bounds how transient provider failures are retried before a run
// is failed.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	out := p
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = defaultBaseBackoff
	}
	if out.MaxBackoff < out.BaseBackoff {
		out.MaxBackoff = out.BaseBackoff
	}
	return out
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return delay
}

// Retry runs op, retrying transient failures with exponential backoff.
// Validation-class errors are surfaced immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.normalize()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !base.IsTransient(err) {
			return zero, err
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.backoff(attempt)
		slog.Warn("Transient provider error, retrying",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, errors.Join(errors.New("provider retries exhausted"), lastErr)
}
