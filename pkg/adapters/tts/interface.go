// Package tts exposes the externally owned "synthesized speech is playing"
// signal. The detection pipelines only read it.
package tts

import (
	"sync"
	"time"
)

// Activity reports whether playback is active and since when.
type Activity interface {
	Active() (bool, time.Time)
}

// Signal is a concurrency-safe Activity owned by the playback side.
type Signal struct {
	mu        sync.RWMutex
	active    bool
	changedAt time.Time
	listeners []func(active bool)
}

func NewSignal() *Signal {
	return &Signal{}
}

func (s *Signal) Active() (bool, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.changedAt
}

// Set records a playback change. Listeners run only on an actual change.
func (s *Signal) Set(active bool) {
	s.mu.Lock()
	if s.active == active {
		s.mu.Unlock()
		return
	}
	s.active = active
	s.changedAt = time.Now()
	listeners := make([]func(bool), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(active)
	}
}

// OnChange registers fn to run after every change.
func (s *Signal) OnChange(fn func(active bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Inactive is an Activity that never reports playback.
type Inactive struct{}

func (Inactive) Active() (bool, time.Time) { return false, time.Time{} }

var _ Activity = (*Signal)(nil)
