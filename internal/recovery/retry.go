package recovery

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/desertthunder/docdash/internal/shared"
)

// Options configures [Retry].
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// RetryOn decides whether err is worth another attempt. Defaults to [IsRetryable].
	RetryOn func(err error) bool

	// OnRetry is called before each sleep. Panics raised by it are recovered and ignored.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultOptions returns 5 attempts, 1s base delay, 60s cap and jitter.
func DefaultOptions() Options {
	return Options{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: true}
}

// OptionsFromConfig builds [Options] from the [retry] config section.
func OptionsFromConfig(c shared.RetryConfig) Options {
	opts := DefaultOptions()
	if c.MaxAttempts > 0 {
		opts.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay.Duration > 0 {
		opts.BaseDelay = c.BaseDelay.Duration
	}
	if c.MaxDelay.Duration > 0 {
		opts.MaxDelay = c.MaxDelay.Duration
	}
	opts.Jitter = c.Jitter
	return opts
}

// Backoff returns the delay before the retry that follows attempt (1-based).
func Backoff(attempt int, base, maxDelay time.Duration, jitter bool) time.Duration {
	delay := base
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, maxDelay)
	if jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	}
	return delay
}

// Retry calls fn until it succeeds, returns an error RetryOn rejects, or MaxAttempts is reached.
//
// The error from the last attempt is returned as is. If ctx ends while waiting, ctx.Err() is returned.
func Retry[T any](ctx context.Context, fn func(context.Context) (T, error), opts Options) (T, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = opts.BaseDelay
	}
	retryOn := opts.RetryOn
	if retryOn == nil {
		retryOn = IsRetryable
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= opts.MaxAttempts || !retryOn(err) || ctx.Err() != nil {
			return zero, err
		}

		delay := Backoff(attempt, opts.BaseDelay, opts.MaxDelay, opts.Jitter)
		notify(opts.OnRetry, err, attempt, delay)

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Do is [Retry] for functions without a result.
func Do(ctx context.Context, fn func(context.Context) error, opts Options) error {
	_, err := Retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts)
	return err
}

func notify(onRetry func(error, int, time.Duration), err error, attempt int, delay time.Duration) {
	if onRetry == nil {
		return
	}
	defer func() { _ = recover() }()
	onRetry(err, attempt, delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
