// Package retry provides an exponential-backoff retryer that can be
// composed around a single provider attempt. The chat request path does
// not use it by default; the fallback chain already spreads attempts
// across providers.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Policy configures the backoff retryer.
type Policy struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // delay cap
	Multiplier   float64       // exponential base
}

// DefaultPolicy matches the executor's optional per-attempt retry:
// 3 attempts, 1s initial delay, base 2, 10s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// Retryer retries a function with exponential backoff.
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New creates a retryer, normalizing out-of-range policy values.
func New(policy Policy, logger *zap.Logger) *Retryer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 10 * time.Second
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn until it succeeds, attempts run out, or ctx is cancelled.
// The last error is returned on exhaustion.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := time.Duration(float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1)))
	if d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	return d
}
