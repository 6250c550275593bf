package capability

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds exponential-backoff-with-jitter retries for transient
// adapter failures (§4.A "Retries on transient use exponential backoff with
// jitter, capped at a bounded attempt count").
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors a conservative platform SLA: a handful of
// attempts, capped growth, never silent forever.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    10 * time.Second,
}

// Do runs fn, retrying while it returns a transient AdapterError, up to
// MaxAttempts. Honors ctx cancellation between attempts.
func (rp RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	attempts := rp.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		delay := rp.backoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (rp RetryPolicy) backoff(attempt int) time.Duration {
	d := rp.BaseDelay << attempt
	if d > rp.MaxDelay || d <= 0 {
		d = rp.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}
