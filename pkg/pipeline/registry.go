package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Session struct {
	ID         string
	StreamID   string
	TraceID    string
	Controller *Controller
	Ctx        context.Context
	Cancel     context.CancelFunc
	Created    time.Time
}

// SessionFactory builds the pipeline for a new session.
type SessionFactory func(ctx context.Context, sessionID, streamID, traceID string) (*Controller, error)

type SessionRegistry struct {
	sessions sync.Map
	count    atomic.Int64
	factory  SessionFactory
	draining atomic.Bool
}

func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	return &SessionRegistry{factory: factory}
}

// GetOrCreate returns the session, building and starting its pipeline on
// first use. The bool is true when a new session was created.
func (r *SessionRegistry) GetOrCreate(sessionID, streamID, traceID string) (*Session, bool, error) {
	if sessionID == "" {
		return nil, false, nil
	}
	if v, ok := r.sessions.Load(sessionID); ok {
		return v.(*Session), false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ctrl, err := r.factory(ctx, sessionID, streamID, traceID)
	if err != nil {
		cancel()
		return nil, false, err
	}
	if err := ctrl.Start(ctx); err != nil {
		cancel()
		return nil, false, err
	}
	sess := &Session{
		ID:         sessionID,
		StreamID:   streamID,
		TraceID:    traceID,
		Controller: ctrl,
		Ctx:        ctx,
		Cancel:     cancel,
		Created:    time.Now(),
	}
	actual, loaded := r.sessions.LoadOrStore(sessionID, sess)
	if loaded {
		ctrl.Cleanup()
		cancel()
		return actual.(*Session), false, nil
	}
	r.count.Add(1)
	return sess, true, nil
}

func (r *SessionRegistry) Get(sessionID string) (*Session, bool) {
	if v, ok := r.sessions.Load(sessionID); ok {
		return v.(*Session), true
	}
	return nil, false
}

func (r *SessionRegistry) Remove(sessionID string) {
	if v, ok := r.sessions.LoadAndDelete(sessionID); ok {
		sess := v.(*Session)
		if sess.Controller != nil {
			sess.Controller.Cleanup()
		}
		if sess.Cancel != nil {
			sess.Cancel()
		}
		r.count.Add(-1)
	}
}

func (r *SessionRegistry) CloseAll() {
	r.sessions.Range(func(key, value any) bool {
		if id, ok := key.(string); ok {
			r.Remove(id)
		}
		return true
	})
}

func (r *SessionRegistry) Count() int64 {
	return r.count.Load()
}

func (r *SessionRegistry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *SessionRegistry) Draining() bool {
	return r.draining.Load()
}

func (r *SessionRegistry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
