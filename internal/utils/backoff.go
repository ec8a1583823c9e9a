package utils

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Backoff retries an operation with exponential delay and jitter.
type Backoff struct {
	base       time.Duration
	maxRetries int
	jitter     time.Duration
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries, jitter: base}
}

// Do calls fn until it succeeds, the retries are exhausted or ctx is done.
// fn receives the attempt number starting at 0.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		var p permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if i == b.maxRetries {
			break
		}
		// backoff exponencial + jitter
		wait := time.Duration(1<<i) * b.base
		if b.jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(b.jitter)))
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error { return permanentError{err: err} }
