package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultDrainTimeout = 10 * time.Second

var ErrDrainTimeout = errors.New("drain timeout")

// LifecycleRunner owns the start, run and drain sequence of a long-lived
// component. Run blocks until its context ends or Stop is called; the drain
// and OnStop hook then run once, whichever path triggers them.
type LifecycleRunner struct {
	drainer Drainer
	hooks   Hooks
	timeout time.Duration
	banner  io.Writer

	state atomic.Int32

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopping bool

	shutdown sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	return &LifecycleRunner{
		drainer: drainer,
		hooks:   hooks,
		timeout: timeout,
		banner:  os.Stdout,
	}
}

// SetBanner redirects the startup banner; nil disables it.
func (r *LifecycleRunner) SetBanner(w io.Writer) {
	r.banner = w
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return fmt.Errorf("lifecycle: cannot run from state %s", r.State())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	if r.stopping {
		cancel()
	}
	r.mu.Unlock()

	PrintBannerTo(r.banner)
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	<-runCtx.Done()
	return r.finish()
}

// Stop ends Run, or shuts down directly when Run was never called. It
// returns the drain result and is safe to call repeatedly.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	r.stopping = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.finish()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) finish() error {
	r.shutdown.Do(func() {
		r.state.Store(int32(StateDraining))
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	result := make(chan error, 1)
	go func() { result <- r.drainer.Drain() }()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrDrainTimeout, r.timeout)
	}
}
