// Package retry reruns transient provider and store calls with exponential
// backoff. Embedding APIs rate-limit and object stores drop connections;
// both usually recover on the next try. Failures that cannot recover, like
// auth rejections or invalid models, are tagged with Permanent so the loop
// gives up at once.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config shapes the retry loop.
type Config struct {
	// MaxAttempts bounds total calls, the first included. Zero or negative
	// means a single attempt.
	MaxAttempts int

	// InitialDelay is the pause after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the pause between attempts.
	MaxDelay time.Duration

	// Factor multiplies the pause after each failure.
	Factor float64

	// Jitter spreads each pause across [0.5, 1.5) of its value so parallel
	// workers don't hit the provider in lockstep again.
	Jitter bool
}

// DefaultConfig is three jittered attempts starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Exponential builds a jittered doubling config.
func Exponential(maxAttempts int, initial, max time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     max,
		Factor:       2.0,
		Jitter:       true,
	}
}

// normalized fills zero and negative fields with usable defaults.
func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}
	return c
}

// pause returns the wait after the given 1-based attempt fails.
func (c Config) pause(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Factor, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		d *= 0.5 + rand.Float64() // #nosec G404 -- spread, not secrecy
	}
	return time.Duration(d)
}

// Result reports how a retry loop ended.
type Result struct {
	// Attempts counts calls actually made.
	Attempts int

	// Err is the final error, nil on success.
	Err error

	// Duration is wall time across all attempts and pauses.
	Duration time.Duration
}

// Do calls op until it succeeds, the attempt budget runs out, or the error
// is not worth retrying. Context cancellation, deadline expiry, and
// Permanent-tagged errors end the loop immediately.
func Do(ctx context.Context, config Config, op func() error) Result {
	cfg := config.normalized()
	start := time.Now()

	var res Result
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		res.Attempts = attempt
		res.Err = op()
		if res.Err == nil || !retriable(res.Err) || attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(cfg.pause(attempt)):
		}
	}

	res.Duration = time.Since(start)
	return res
}

// DoWithValue is Do for operations that produce a value. On failure the
// value is whatever the last attempt returned.
func DoWithValue[T any](ctx context.Context, config Config, op func() (T, error)) (T, Result) {
	var v T
	res := Do(ctx, config, func() error {
		var err error
		v, err = op()
		return err
	})
	return v, res
}

// retriable reports whether err deserves another attempt. Permanent tags
// and context teardown do not.
func retriable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError tags an error the caller must not retry.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent tags err as hopeless to retry: bad requests, auth rejections,
// schema violations. Rate limits and transport resets stay retriable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether a Permanent tag appears anywhere in the chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
