// Package retry provides exponential backoff for transient network
// failures.  The listener uses it to ride out temporary accept errors
// (descriptor exhaustion, aborted handshakes) without spinning.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PermanentError stops a retry loop: [Backoff.Do] returns the wrapped
// error at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.  Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

const (
	defaultBase   = 5 * time.Millisecond
	defaultCap    = time.Second
	defaultFactor = 2.0
)

// Backoff is an exponential retry schedule.  The zero value waits 5ms
// after the first failure, doubles each time up to 1s and never gives
// up on its own.
type Backoff struct {
	Base     time.Duration // wait after the first failure
	Cap      time.Duration // longest wait
	Factor   float64       // growth per failure
	Attempts int           // total tries including the first; 0 is unlimited
}

// AcceptBackoff is the schedule between temporary accept failures.
func AcceptBackoff() Backoff {
	return Backoff{Base: defaultBase, Cap: defaultCap, Factor: defaultFactor}
}

// Delay returns the wait after the n-th consecutive failure (1-based).
func (b Backoff) Delay(n int) time.Duration {
	d, limit, factor := b.Base, b.Cap, b.Factor
	if d <= 0 {
		d = defaultBase
	}
	if limit <= 0 {
		limit = defaultCap
	}
	if factor < 1 {
		factor = defaultFactor
	}
	for i := 1; i < n && d < limit; i++ {
		d = time.Duration(float64(d) * factor)
	}
	return min(d, limit)
}

// Do calls op until it returns nil, returns a [Permanent] error, runs
// out of attempts or ctx is done.  op receives the 1-based attempt.
func (b Backoff) Do(ctx context.Context, op func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := op(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.Attempts > 0 && attempt >= b.Attempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		t := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}
