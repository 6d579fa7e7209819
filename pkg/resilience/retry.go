package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls the retry loop.
type RetryConfig struct {
	// MaxAttempts caps the number of calls. 0 means no cap; bound the
	// loop with MaxElapsed instead.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Jitter is the fraction of each backoff that is randomized,
	// in [0,1]. Sleeps are drawn uniformly from
	// [backoff*(1-Jitter), backoff].
	Jitter float64

	// MaxElapsed is the total time budget across all attempts and
	// sleeps. 0 means unlimited.
	MaxElapsed time.Duration

	// RetryIf decides whether an error is worth another attempt.
	// nil retries every error.
	RetryIf func(error) bool

	// Rand is the randomness source for jitter. nil uses the shared
	// package-level source.
	Rand *rand.Rand
}

// DefaultRetryConfig returns a config suitable for short operations.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.5,
	}
}

// Retry runs fn with randomized exponential backoff until it succeeds,
// the error is not retryable, the attempt cap or elapsed budget is
// exhausted, or the context is done. The last error is returned as-is.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}

	start := time.Now()
	backoff := cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return err
		}

		sleep := jittered(backoff, cfg.Jitter, cfg.Rand)
		if cfg.MaxElapsed > 0 && time.Since(start)+sleep > cfg.MaxElapsed {
			return err
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

func jittered(d time.Duration, jitter float64, rng *rand.Rand) time.Duration {
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	span := float64(d) * jitter
	var f float64
	if rng != nil {
		f = rng.Float64()
	} else {
		f = rand.Float64()
	}
	return time.Duration(float64(d) - span + f*span)
}
