// Package retry provides exponential backoff for client dialing and a
// circuit breaker that pauses the server's accept loop when accepting
// keeps failing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that retrying will not help.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff retries an operation with exponentially growing delays.
type Backoff struct {
	// InitialDelay is the wait after the first failure (default 100ms).
	InitialDelay time.Duration
	// MaxDelay caps a single wait (default 5s).
	MaxDelay time.Duration
	// Multiplier grows the delay after each failure (default 2.0).
	Multiplier float64
	// MaxAttempts counts tries including the first; 0 retries until
	// the context ends.
	MaxAttempts int
	// Jitter spreads each wait by ±25% so reconnecting clients do not
	// hit a restarted server in lockstep.
	Jitter bool
	// Retryable, when set, stops the loop on errors it rejects.
	Retryable func(error) bool
}

// DefaultBackoff suits dialing a local or LAN server.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  8,
		Jitter:       true,
	}
}

// Do calls fn until it returns nil, returns a permanent or
// non-retryable error, runs out of attempts, or ctx ends.  attempt is
// 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay, maxDelay, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if mult <= 1 {
		mult = 2.0
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.Retryable != nil && !b.Retryable(err):
			return err
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}

		delay = time.Duration(math.Min(float64(delay)*mult, float64(maxDelay)))
	}
}

// addJitter returns d ±25%, never below a millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := rand.Float64()*2*quarter - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
