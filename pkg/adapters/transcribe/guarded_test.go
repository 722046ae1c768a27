package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/resilience"
)

func TestGuardedRetriesTransientErrors(t *testing.T) {
	calls := 0
	inner := Func(func(context.Context, Request) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("boom")
		}
		return "hello", nil
	})
	g := NewGuarded(inner, GuardOptions{Retry: resilience.NewRetryPolicy(2, time.Millisecond)})
	text, err := g.Transcribe(context.Background(), Request{PCM: []byte{1, 2}})
	if err != nil || text != "hello" || calls != 2 {
		t.Fatalf("expected success on second call, got %q %v after %d calls", text, err, calls)
	}
}

func TestGuardedRejectsShortAudio(t *testing.T) {
	g := NewGuarded(Func(func(context.Context, Request) (string, error) {
		t.Fatalf("inner transcriber should not be called")
		return "", nil
	}), GuardOptions{MinBytes: 10})
	if _, err := g.Transcribe(context.Background(), Request{PCM: []byte{1, 2}}); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestGuardedOpensBreakerOnRateLimit(t *testing.T) {
	inner := Func(func(context.Context, Request) (string, error) {
		return "", resilience.RateLimitError{Provider: "test"}
	})
	breaker := resilience.NewCircuitBreaker(2, time.Minute)
	g := NewGuarded(inner, GuardOptions{Breaker: breaker})
	req := Request{PCM: []byte{1, 2}}

	for i := 0; i < 2; i++ {
		_, err := g.Transcribe(context.Background(), req)
		if !errorsx.HasReason(err, errorsx.ReasonTranscribeRateLimit) {
			t.Fatalf("expected rate limit reason, got %v", err)
		}
	}
	_, err := g.Transcribe(context.Background(), req)
	if !errorsx.HasReason(err, errorsx.ReasonTranscribeCircuitOpen) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestGuardedAppliesTimeout(t *testing.T) {
	inner := Func(func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g := NewGuarded(inner, GuardOptions{Timeout: 10 * time.Millisecond})
	_, err := g.Transcribe(context.Background(), Request{PCM: []byte{1, 2}})
	if !errors.Is(err, context.DeadlineExceeded) || !errorsx.HasReason(err, errorsx.ReasonTranscribe) {
		t.Fatalf("expected deadline exceeded with transcribe reason, got %v", err)
	}
}
