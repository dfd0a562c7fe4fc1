// Package retry bounds retries of transient backend failures.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/docqa-server/internal/config"
)

// Policy describes how often and how patiently a backend call is retried.
// The zero value and MaxAttempts of 1 both mean "call once".
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// None returns a policy that never retries.
func None() Policy {
	return Policy{MaxAttempts: 1}
}

// FromConfig builds a policy from configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval(),
		MaxInterval:     cfg.MaxInterval(),
	}
}

// Enabled reports whether more than one attempt is allowed.
func (p Policy) Enabled() bool {
	return p.MaxAttempts > 1
}

// Do runs op, retrying with exponential backoff while retryable reports the
// error as transient and attempts remain. A nil retryable retries every error.
// The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	if !p.Enabled() {
		return op()
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	// Attempts bound the loop instead of elapsed time
	b.MaxElapsedTime = 0

	operation := func() error {
		err := op()
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bounded := backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	return backoff.Retry(operation, backoff.WithContext(bounded, ctx))
}
