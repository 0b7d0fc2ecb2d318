// Package retry wraps rate-limited provider calls in a bounded
// exponential-backoff loop. Only errors marked with RateLimited are
// retried; everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config tunes one Do invocation. The zero value retries nothing.
type Config struct {
	// MaxAttempts is the number of retries after the first call, so Do
	// performs at most MaxAttempts+1 calls.
	MaxAttempts int
	// BaseDelay is doubled on every retry before jitter is added.
	BaseDelay time.Duration

	// Sleep and Rand are injection points for tests. When nil, Do uses a
	// context-aware timer sleep and math/rand jitter.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

type rateLimitError struct {
	err error
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.err)
}

func (e *rateLimitError) Unwrap() error {
	return e.err
}

// RateLimited marks err as a transient throttling signal eligible for
// automatic retry.
func RateLimited(err error) error {
	if err == nil {
		return nil
	}
	return &rateLimitError{err: err}
}

// IsRateLimited reports whether err carries a rate-limit mark anywhere in
// its chain.
func IsRateLimited(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// ExhaustedError is returned when every permitted attempt was rate
// limited. It names the likely cause so the caller can surface it.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts, provider quota or billing is likely exhausted: %v",
		e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do invokes op, retrying on rate-limit errors with exponential backoff
// plus up to one second of uniform jitter. It keeps no state beyond the
// loop counter local to the call.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	random := cfg.Rand
	if random == nil {
		random = rand.Float64
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts {
			return zero, &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		delay := cfg.BaseDelay*(1<<uint(attempt)) + time.Duration(random()*float64(time.Second))
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
