package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig controls how often and how patiently a request is repeated.
type RetryConfig struct {
	// MaxAttempts counts the first request; 1 disables retries.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffMultiplier grows the wait after every failed attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig is used for failures without a class-specific policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryPolicies tune the backoff per failure class. A rate-limited backend
// gets more room; server errors recover quickly or not at all.
var retryPolicies = map[ErrorClass]RetryConfig{
	ErrorClassServer:    {MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second, BackoffMultiplier: 2},
	ErrorClassRateLimit: {MaxAttempts: 4, InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second, BackoffMultiplier: 2},
	ErrorClassNetwork:   {MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, BackoffMultiplier: 2},
}

// RetryPolicy returns the retry configuration applied to failures of class.
func RetryPolicy(class ErrorClass) RetryConfig {
	if p, ok := retryPolicies[class]; ok {
		return p
	}
	return DefaultRetryConfig()
}

// backoffFor returns the un-jittered wait after the given failed attempt.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
		if c.MaxBackoff > 0 && time.Duration(backoff) >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && time.Duration(backoff) > c.MaxBackoff {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

// retrier repeats a request while its failures are retriable.
type retrier struct {
	// override replaces the per-class policies when set.
	override *RetryConfig
	logger   zerolog.Logger
	jitter   func(time.Duration) time.Duration
}

func newRetrier(override *RetryConfig, logger zerolog.Logger) *retrier {
	return &retrier{override: override, logger: logger, jitter: jitterWait}
}

// jitterWait spreads d by ±20% so clients do not retry in lockstep.
func jitterWait(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

func (r *retrier) policy(class ErrorClass) RetryConfig {
	if r.override != nil {
		return *r.override
	}
	return RetryPolicy(class)
}

// wait computes the pause after attempt. A Retry-After hint from the
// backend wins over the computed backoff but never exceeds MaxBackoff.
func (r *retrier) wait(p RetryConfig, attempt int, err error) time.Duration {
	d := r.jitter(p.backoffFor(attempt))
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > d {
		d = apiErr.RetryAfter
		if p.MaxBackoff > 0 && d > p.MaxBackoff {
			d = p.MaxBackoff
		}
	}
	return d
}

// do runs fn until it succeeds, fails with a non-retriable error, the
// attempts of the failure's policy are used up or ctx ends.
func (r *retrier) do(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}

		class := classifyError(err)
		if !class.Retriable() {
			return err
		}

		p := r.policy(class)
		if attempt >= p.MaxAttempts {
			retryExhaustedTotal.WithLabelValues(string(class)).Inc()
			r.logger.Warn().
				Str("error_class", string(class)).
				Int("attempts", attempt).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		d := r.wait(p, attempt, err)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(d.Seconds())
		r.logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", d).
			Msg("Retrying request")

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}
