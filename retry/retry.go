package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Policy bounds a retry loop.
//
// Fields:
// - MaxAttempts: the total number of attempts, at least 1.
// - BaseDelay: the wait after the first failed attempt.
// - Multiplier: the factor applied to the wait after every failed attempt. Values below 1 keep the delay fixed.
// - AttemptTimeout: the deadline of a single attempt, zero means no per-attempt deadline.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: delay, Multiplier: 1}
}

// Exponential returns a policy whose delay is multiplied after every failure.
func Exponential(attempts int, base time.Duration, multiplier float64, attemptTimeout time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: base, Multiplier: multiplier, AttemptTimeout: attemptTimeout}
}

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// backOff returns the delay schedule without jitter, so delays are
// reproducible.
func (p Policy) backOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.BaseDelay)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	b := p.backOff()
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. Attempts are 1-based. The last attempt error is returned,
// also when ctx ends the loop early.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	var lastErr error
	operation := func() error {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return backoff.Permanent(lastErr)
			}
			return backoff.Permanent(err)
		}
		attempt++
		lastErr = p.run(ctx, attempt, fn)
		return lastErr
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)
	err := backoff.Retry(operation, schedule)
	if err != nil && ctx.Err() != nil && lastErr != nil {
		var permanent *backoff.PermanentError
		if errors.As(lastErr, &permanent) {
			return permanent.Err
		}
		return lastErr
	}
	return err
}

func (p Policy) run(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}
