package resilience

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior for transient failures.
// With Linear set, the wait before attempt n is n*Backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Linear     bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// NewLinearPolicy returns a policy whose delay grows by backoff per attempt.
func NewLinearPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	p := NewRetryPolicy(maxRetries, backoff)
	p.Linear = true
	return p
}

// Delay returns the wait before the given attempt (1-based).
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if !r.Linear {
		return r.Backoff
	}
	return time.Duration(attempt) * r.Backoff
}

// Exhausted reports whether attempt has reached the retry bound.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

func (r RetryPolicy) Do(fn func() error) error {
	return r.DoContext(context.Background(), func(context.Context) error { return fn() })
}

func (r RetryPolicy) DoContext(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries {
			return err
		}
		timer := time.NewTimer(r.Delay(i + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
