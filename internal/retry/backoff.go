// Package retry paces reconnection to a device that may be out of
// range, powered off or busy with another phone.  Backoff spaces the
// attempts out; CircuitBreaker stops hammering a peer that keeps
// refusing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError marks a failure that no amount of waiting will fix,
// such as a denied radio permission.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Backoff.Do stops immediately.  A nil err
// stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff computes exponentially growing waits between reconnects.
// The zero value is usable and behaves like DefaultBackoff without
// jitter or an attempt limit.
type Backoff struct {
	// InitialDelay is the wait before the second attempt (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps a single wait (default 30s).
	MaxDelay time.Duration
	// Multiplier grows the wait per attempt (default 2).
	Multiplier float64
	// MaxAttempts counts the first try.  0 means until ctx is done.
	MaxAttempts int
	// Jitter spreads each wait by up to ±20%.
	Jitter bool
	// Retryable, when set, decides whether a failure is worth another
	// attempt.  Failures it rejects end Do like a permanent error.
	Retryable func(error) bool
}

// DefaultBackoff suits a phone re-pairing with a scale: quick first
// retries, then one attempt every half minute.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// Delay returns the wait after the given failed attempt (1-based),
// before jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.InitialDelay
	if d <= 0 {
		d = time.Second
	}
	ceiling := b.MaxDelay
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	m := b.Multiplier
	if m < 1 {
		m = 2
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * m)
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Next returns the wait after the given failed attempt with jitter
// applied when enabled.
func (b *Backoff) Next(attempt int) time.Duration {
	d := b.Delay(attempt)
	if b.Jitter {
		d = jitter(d)
	}
	return d
}

// Do calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx ends.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		if err := Sleep(ctx, b.Next(attempt)); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.2
	j := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	if j < time.Millisecond {
		return time.Millisecond
	}
	return j
}
