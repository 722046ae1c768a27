package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunDrainsOnCancel(t *testing.T) {
	var drained, started, stopped bool
	r := NewLifecycleRunner(DrainerFunc(func() error {
		drained = true
		return nil
	}), Hooks{
		OnStart: func() { started = true },
		OnStop:  func() { stopped = true },
	}, time.Second)
	var buf bytes.Buffer
	r.SetBanner(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !drained || !started || !stopped {
		t.Fatalf("expected hooks and drain, got drained=%v started=%v stopped=%v", drained, started, stopped)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if !strings.Contains(buf.String(), "Version: "+EngineVersion) {
		t.Fatalf("expected banner output, got %q", buf.String())
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(DrainerFunc(func() error {
		<-block
		return nil
	}), Hooks{}, 20*time.Millisecond)
	r.SetBanner(nil)

	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("stop should be idempotent, got %v", err)
	}
}

func TestRunTwiceFails(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	r.SetBanner(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Run(ctx)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected second run to fail")
	}
}

func TestStopDuringStartEndsRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	r := NewLifecycleRunner(nil, Hooks{OnStart: func() {
		close(entered)
		<-release
	}}, time.Second)
	r.SetBanner(nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	<-entered
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return after stop")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
}

func TestDrainErrorReturned(t *testing.T) {
	boom := errors.New("sessions still open")
	r := NewLifecycleRunner(DrainerFunc(func() error { return boom }), Hooks{}, time.Second)
	r.SetBanner(nil)
	if err := r.Stop(); !errors.Is(err, boom) {
		t.Fatalf("expected drain error, got %v", err)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected run after stop to fail")
	}
}
