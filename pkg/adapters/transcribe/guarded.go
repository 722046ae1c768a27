package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/resilience"
)

type GuardOptions struct {
	Timeout  time.Duration
	Retry    resilience.RetryPolicy
	Breaker  *resilience.CircuitBreaker
	MinBytes int
}

// Guarded adds a timeout, retries and a rate-limit circuit breaker around
// another Transcriber.
type Guarded struct {
	inner Transcriber
	opts  GuardOptions
}

func NewGuarded(inner Transcriber, opts GuardOptions) *Guarded {
	return &Guarded{inner: inner, opts: opts}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Transcribe(ctx context.Context, req Request) (string, error) {
	if len(req.PCM) == 0 || len(req.PCM) < g.opts.MinBytes {
		return "", ErrEmptyAudio
	}
	if g.opts.Breaker != nil && !g.opts.Breaker.Allow() {
		err := fmt.Errorf("%w: retry in %s", resilience.ErrCircuitOpen, g.opts.Breaker.Remaining().Round(time.Second))
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribeCircuitOpen)
	}
	var text string
	err := g.opts.Retry.DoContext(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if g.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
			defer cancel()
		}
		out, err := g.inner.Transcribe(callCtx, req)
		if err != nil {
			if g.opts.Breaker != nil {
				g.opts.Breaker.OnError(err)
			}
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		if resilience.IsRateLimit(err) {
			return "", errorsx.Wrap(err, errorsx.ReasonTranscribeRateLimit)
		}
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribe)
	}
	if g.opts.Breaker != nil {
		g.opts.Breaker.OnSuccess()
	}
	return text, nil
}

var _ Transcriber = (*Guarded)(nil)
