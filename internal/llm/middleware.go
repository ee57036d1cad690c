package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout bounds every Generate call by d, derived from the caller's context.
func WithTimeout(p Provider, d time.Duration) Provider {
	return &timeoutProvider{next: p, timeout: d}
}

func (t *timeoutProvider) Name() string { return t.next.Name() }

func (t *timeoutProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Generate(ctx, p)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &ProviderError{
			Provider: t.next.Name(),
			Reason:   fmt.Sprintf("timed out after %s", t.timeout),
			Err:      err,
		}
	}
	return out, err
}

type retryProvider struct {
	next     Provider
	attempts int
	backoff  time.Duration
}

// WithRetry retries retryable provider errors with linear backoff.
func WithRetry(p Provider, attempts int, backoff time.Duration) Provider {
	if attempts < 1 {
		attempts = 1
	}
	return &retryProvider{next: p, attempts: attempts, backoff: backoff}
}

func (r *retryProvider) Name() string { return r.next.Name() }

func (r *retryProvider) Generate(ctx context.Context, p Prompt) (string, error) {
	return retry(ctx, r.attempts, r.backoff, func() (string, error) {
		return r.next.Generate(ctx, p)
	})
}

func retry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var err error
	for i := 0; i < attempts; i++ {
		var res T
		res, err = fn()
		if err == nil {
			return res, nil
		}
		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Retryable {
			return zero, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, asProviderError("retry", "cancelled while backing off", ctx.Err())
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return zero, err
}
