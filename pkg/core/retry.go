package core

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/juju/clock"
)

// Sleeper abstracts time.Sleep for deterministic tests.
type Sleeper interface {
	Sleep(time.Duration)
}

// FuncSleeper wraps a function to satisfy Sleeper.
type FuncSleeper func(time.Duration)

// Sleep implements the Sleeper interface.
func (f FuncSleeper) Sleep(d time.Duration) { f(d) }

// ContextSleeper is a Sleeper that can be interrupted by a context.
type ContextSleeper interface {
	Sleeper
	SleepContext(ctx context.Context, d time.Duration) error
}

// ClockSleeper waits on the provided clock and stops early when the context is done.
func ClockSleeper(clk clock.Clock) ContextSleeper {
	return clockSleeper{clock: clk}
}

type clockSleeper struct {
	clock clock.Clock
}

func (s clockSleeper) Sleep(d time.Duration) { <-s.clock.After(d) }

func (s clockSleeper) SleepContext(ctx context.Context, d time.Duration) error {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackoffStrategy holds retry parameters.
type BackoffStrategy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64
	Sleeper     Sleeper
	Rand        func() float64
}

// DefaultBackoff returns a conservative exponential backoff configuration.
func DefaultBackoff() BackoffStrategy {
	return BackoffStrategy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		MaxAttempts: 5,
		Jitter:      0.2,
	}
}

// CertificateRetryBackoff is the delay schedule for re-requesting a certificate after the
// authority returned a mismatching or denied certificate.
func CertificateRetryBackoff() BackoffStrategy {
	return BackoffStrategy{
		BaseDelay: 30 * time.Second,
		MaxDelay:  time.Hour,
	}
}

// Retry executes fn with exponential backoff. The function stops retrying when fn returns nil,
// when shouldRetry returns false, or after MaxAttempts have been exhausted. It returns the
// number of attempts executed and the last error from fn, if any.
func (b BackoffStrategy) Retry(fn func() error, shouldRetry func(error) bool) (int, error) {
	return b.RetryContext(context.Background(), fn, shouldRetry)
}

// RetryContext is Retry that also gives up once ctx is done.
func (b BackoffStrategy) RetryContext(ctx context.Context, fn func() error, shouldRetry func(error) bool) (int, error) {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = 100 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = time.Second
	}
	sleeper := b.Sleeper
	if sleeper == nil {
		sleeper = ClockSleeper(clock.WallClock)
	}
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return attempt, err
		}
		if attempt == b.MaxAttempts {
			return attempt, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, err
		}
		delay := b.nextDelay(attempt)
		if b.Jitter > 0 {
			jitter := float64(delay) * b.Jitter * rnd()
			delay += time.Duration(jitter)
		}
		if contextSleeper, ok := sleeper.(ContextSleeper); ok {
			if contextSleeper.SleepContext(ctx, delay) != nil {
				return attempt, err
			}
			continue
		}
		sleeper.Sleep(delay)
	}
	return b.MaxAttempts, nil
}

// Delay returns the un-jittered wait before the attempt following the given failure count.
func (b BackoffStrategy) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = 100 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = time.Second
	}
	return b.nextDelay(failures)
}

func (b BackoffStrategy) nextDelay(attempt int) time.Duration {
	exp := float64(attempt - 1)
	delay := float64(b.BaseDelay) * math.Pow(2, exp)
	max := float64(b.MaxDelay)
	if delay > max {
		delay = max
	}
	return time.Duration(delay)
}
