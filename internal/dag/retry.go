package dag

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffKind selects which back-off curve a RetryPolicy applies
// between attempts.
type BackoffKind int

const (
	// BackoffConstant always waits the same duration.
	BackoffConstant BackoffKind = iota
	// BackoffLinear ramps from Min to Max over MaxRetries attempts.
	BackoffLinear
	// BackoffExponential multiplies Min by Base^(attempt-1), capped at Max.
	BackoffExponential
)

// RetryPolicy configures the RetryEngine: how many times to retry a
// failing Runnable and how long to wait between attempts. Attempt
// counting for back-off purposes is 1-based; total invocations equal
// 1+MaxRetries.
type RetryPolicy struct {
	MaxRetries int
	Backoff    BackoffKind

	Constant time.Duration

	LinearMin time.Duration
	LinearMax time.Duration

	ExpBase float64
	ExpMin  time.Duration
	ExpMax  time.Duration
}

// ConstantBackoff retries up to maxRetries times, waiting d between
// every attempt.
func ConstantBackoff(maxRetries int, d time.Duration) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Backoff: BackoffConstant, Constant: d}
}

// LinearBackoff retries up to maxRetries times, ramping the wait from
// min to max. min == max degenerates to ConstantBackoff(maxRetries, min).
func LinearBackoff(maxRetries int, min, max time.Duration) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Backoff: BackoffLinear, LinearMin: min, LinearMax: max}
}

// ExponentialBackoff retries up to maxRetries times, waiting
// min*base^(attempt-1) capped at max.
func ExponentialBackoff(maxRetries int, base float64, min, max time.Duration) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Backoff: BackoffExponential, ExpBase: base, ExpMin: min, ExpMax: max}
}

// NoRetry runs a Runnable exactly once.
func NoRetry() RetryPolicy { return RetryPolicy{MaxRetries: 0, Backoff: BackoffConstant} }

// newBackOff builds the backoff.BackOff implementation for the
// policy's curve. The returned value tracks its own 1-based attempt
// counter, incremented on every NextBackOff call, matching the
// "1-based attempt index" the policies are defined against.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	switch p.Backoff {
	case BackoffLinear:
		return &linearBackOff{min: p.LinearMin, max: p.LinearMax, maxRetries: p.MaxRetries}
	case BackoffExponential:
		base := p.ExpBase
		if base <= 0 {
			base = 2
		}
		return &exponentialBackOff{base: base, min: p.ExpMin, max: p.ExpMax}
	default:
		return &constantBackOff{d: p.Constant}
	}
}

type constantBackOff struct{ d time.Duration }

func (b *constantBackOff) NextBackOff() time.Duration { return b.d }
func (b *constantBackOff) Reset()                     {}

// linearBackOff implements min + (max-min)*i/N, clamped to max, where
// i is the 1-based attempt index and N is MaxRetries.
type linearBackOff struct {
	min, max   time.Duration
	maxRetries int
	attempt    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.maxRetries <= 0 {
		return b.max
	}
	step := (b.max - b.min) / time.Duration(b.maxRetries)
	d := b.min + step*time.Duration(b.attempt)
	if d > b.max {
		d = b.max
	}
	return d
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// exponentialBackOff implements min*base^(i-1), clamped to max; falls
// back to min on overflow.
type exponentialBackOff struct {
	base       float64
	min, max   time.Duration
	attempt    int
}

func (b *exponentialBackOff) NextBackOff() time.Duration {
	b.attempt++
	raw := float64(b.min) * math.Pow(b.base, float64(b.attempt-1))
	if raw <= 0 || math.IsInf(raw, 0) || raw > float64(math.MaxInt64) {
		return b.min
	}
	d := time.Duration(raw)
	if d > b.max {
		d = b.max
	}
	return d
}

func (b *exponentialBackOff) Reset() { b.attempt = 0 }

// retryOutcome records what runWithRetry observed about an attempt
// sequence, independent of the eventual error/stats.
type retryOutcome struct {
	attempts int
	duration time.Duration
}

// runWithRetry executes r up to 1+policy.MaxRetries times, sleeping
// the policy's back-off between failures. Cancellation observed
// during the sleep propagates out with the most recently seen error,
// not ctx.Err(), per the contract the RetryEngine promises callers.
func runWithRetry(ctx context.Context, clock Clock, r Runnable, policy RetryPolicy) (Stats, retryOutcome, error) {
	if policy.MaxRetries < 0 {
		return nil, retryOutcome{}, errNoExecution
	}
	wrapped := backoff.WithMaxRetries(policy.newBackOff(), uint64(policy.MaxRetries))
	start := clock.Now()
	lastErr := error(errNoExecution)
	attempts := 0

	for {
		attempts++
		stats, err := r.Execute(ctx)
		if err == nil {
			return stats, retryOutcome{attempts: attempts, duration: clock.Now().Sub(start)}, nil
		}
		lastErr = err

		d := wrapped.NextBackOff()
		if d == backoff.Stop {
			return nil, retryOutcome{attempts: attempts, duration: clock.Now().Sub(start)}, lastErr
		}
		if sleepErr := clock.Sleep(ctx, d); sleepErr != nil {
			return nil, retryOutcome{attempts: attempts, duration: clock.Now().Sub(start)}, lastErr
		}
	}
}
