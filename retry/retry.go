package retry

import (
	"context"
	"time"
)

const (
	// DefaultMaxRetries bounds the attempt count at 1 initial attempt plus
	// this many retries.
	DefaultMaxRetries = 3

	// DefaultBaseWait is the wait before the first retry. The wait doubles
	// before each subsequent retry. No jitter is applied.
	DefaultBaseWait = 2 * time.Second
)

// WaitFunc waits for the given duration or until the context is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

type options struct {
	maxRetries int
	baseWait   time.Duration
	wait       WaitFunc
}

// Option configures retry behavior.
type Option func(*options)

// WithMaxRetries sets the maximum number of retries after the initial attempt.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithBaseWait sets the wait before the first retry.
func WithBaseWait(d time.Duration) Option {
	return func(o *options) { o.baseWait = d }
}

// WithWaitFunc replaces the wait implementation. Used by tests to observe the
// backoff schedule without sleeping.
func WithWaitFunc(fn WaitFunc) Option {
	return func(o *options) { o.wait = fn }
}

// Do runs fn until it succeeds, returns a non-recoverable error, or the retry
// budget is exhausted. Recoverability is determined by IsRecoverable. The
// wait between attempts starts at the base wait and doubles each retry.
// The last error from fn is returned on exhaustion.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := options{
		maxRetries: DefaultMaxRetries,
		baseWait:   DefaultBaseWait,
		wait:       Wait,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}

	var err error
	wait := o.baseWait
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRecoverable(err) || attempt >= o.maxRetries {
			return err
		}
		if waitErr := o.wait(ctx, wait); waitErr != nil {
			return err
		}
		wait *= 2
	}
}

// Wait blocks for the given duration or until the context is done.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
