package model

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hupe1980/agentloop/logging"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	// MaxTries bounds the number of attempts including the first one.
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime bounds the total time spent retrying; 0 disables the bound.
	MaxElapsedTime time.Duration
	// Retryable classifies errors; nil uses DefaultRetryable.
	Retryable func(error) bool
	Logger    logging.Logger
}

// DefaultRetryOptions retries up to three times with exponential backoff.
var DefaultRetryOptions = RetryOptions{
	MaxTries:        3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxElapsedTime:  time.Minute,
}

// DefaultRetryable treats context errors and non-transient API errors as permanent.
func DefaultRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrScriptExhausted) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

type retryModel struct {
	inner Model
	opts  RetryOptions
}

// WithRetry decorates m so transient failures are retried with exponential
// backoff. An attempt that already forwarded partial output is never retried,
// so callers never see duplicated text deltas.
func WithRetry(m Model, optFns ...func(o *RetryOptions)) Model {
	opts := DefaultRetryOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retryable == nil {
		opts.Retryable = DefaultRetryable
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &retryModel{inner: m, opts: opts}
}

func (r *retryModel) Info() Info { return r.inner.Info() }

func (r *retryModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = r.opts.InitialInterval
		eb.MaxInterval = r.opts.MaxInterval

		attempt := 0
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			attempt++
			forwarded, err := r.attempt(ctx, req, out)
			if err == nil {
				return struct{}{}, nil
			}
			if forwarded || !r.opts.Retryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		},
			backoff.WithBackOff(eb),
			backoff.WithMaxTries(r.opts.MaxTries),
			backoff.WithMaxElapsedTime(r.opts.MaxElapsedTime),
			backoff.WithNotify(func(err error, next time.Duration) {
				r.opts.Logger.Warn("model.retry", "model", r.inner.Info().Name, "attempt", attempt, "next_in", next, "error", err.Error())
			}),
		)
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				err = perm.Unwrap()
			}
			errCh <- err
		}
	}()

	return out, errCh
}

// attempt runs one Generate call, forwarding responses as they arrive. It
// reports whether anything was forwarded before a failure.
func (r *retryModel) attempt(ctx context.Context, req Request, out chan<- Response) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	respCh, errCh := r.inner.Generate(ctx, req)
	forwarded := false
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return forwarded, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			select {
			case out <- resp:
				forwarded = true
			case <-ctx.Done():
				return forwarded, ctx.Err()
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return forwarded, err
			}
		}
	}
	return forwarded, nil
}
