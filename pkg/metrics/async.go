package metrics

import (
	"sync"
	"sync/atomic"
)

const DefaultAsyncBuffer = 256

// AsyncObserver hands events to inner on its own goroutine so the audio
// callback never waits on a slow sink. A full buffer drops the event.
type AsyncObserver struct {
	inner  Observer
	events chan MetricsEvent
	done   chan struct{}

	mu       sync.RWMutex
	closed   bool
	flushErr error

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if inner == nil {
		inner = NoopObserver{}
	}
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	a := &AsyncObserver{
		inner:  inner,
		events: make(chan MetricsEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.forward()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

func (a *AsyncObserver) Delivered() int64 { return a.delivered.Load() }

// Close rejects further events, waits until the buffer has reached inner
// and returns the error of the final flush. Repeated calls return the same
// error.
func (a *AsyncObserver) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	<-a.done
	return a.flushErr
}

func (a *AsyncObserver) forward() {
	defer close(a.done)
	for ev := range a.events {
		a.inner.RecordEvent(ev)
		a.delivered.Add(1)
	}
	if f, ok := a.inner.(Flusher); ok {
		a.flushErr = f.Flush()
	}
}
