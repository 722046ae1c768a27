package segment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSpeechThreshold    = 1.5
	DefaultConfirmationFrames = 3
	DefaultSilenceDuration    = 1500 * time.Millisecond
	DefaultMinSpeechDuration  = 400 * time.Millisecond
)

type Config struct {
	SpeechThreshold    float64
	ConfirmationFrames int
	SilenceDuration    time.Duration
	MinSpeechDuration  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.ConfirmationFrames <= 0 {
		c.ConfirmationFrames = DefaultConfirmationFrames
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MinSpeechDuration < 0 {
		c.MinSpeechDuration = 0
	}
	return c
}

// Segmenter is the speech segmentation state machine. Observe is called once
// per volume reading with a monotonic timestamp.
type Segmenter struct {
	mu  sync.Mutex
	cfg Config

	state        State
	loudCount    int
	runStart     time.Time
	silenceStart time.Time
	current      *Segment

	listeners []StateListener
	newID     func() string
}

func New(cfg Config) *Segmenter {
	return &Segmenter{
		cfg:   cfg.withDefaults(),
		state: StateIdle,
		newID: uuid.NewString,
	}
}

func (s *Segmenter) Config() Config {
	return s.cfg
}

// State returns the current state.
func (s *Segmenter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the open segment, if any.
func (s *Segmenter) Current() (Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Segment{}, false
	}
	return *s.current, true
}

// AddListener registers a listener for state change events.
func (s *Segmenter) AddListener(listener StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Start moves Idle to Listening.
func (s *Segmenter) Start() error {
	s.mu.Lock()
	change, err := s.transitionLocked(time.Now(), StateListening, "start")
	s.mu.Unlock()
	s.notify(change)
	return err
}

// Stop returns to Idle from any state, dropping an open segment.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	var change *StateChange
	if s.state != StateIdle {
		change, _ = s.transitionLocked(time.Now(), StateIdle, "stop")
	}
	s.resetLocked()
	s.mu.Unlock()
	s.notify(change)
}

// Settle ends Processing once the transcription hand-off has finished.
func (s *Segmenter) Settle() error {
	s.mu.Lock()
	if s.state != StateProcessing {
		from := s.state
		s.mu.Unlock()
		return &InvalidTransitionError{From: from, To: StateListening}
	}
	change, err := s.transitionLocked(time.Now(), StateListening, "transcription settled")
	s.mu.Unlock()
	s.notify(change)
	return err
}

// Observe feeds one smoothed volume reading.
func (s *Segmenter) Observe(now time.Time, volume float64, ttsActive bool) Event {
	s.mu.Lock()
	ev, change := s.observeLocked(now, volume, ttsActive)
	s.mu.Unlock()
	s.notify(change)
	return ev
}

func (s *Segmenter) observeLocked(now time.Time, volume float64, ttsActive bool) (Event, *StateChange) {
	loud := volume > s.cfg.SpeechThreshold

	switch s.state {
	case StateListening:
		if ttsActive || !loud {
			s.loudCount = 0
			return Event{}, nil
		}
		if s.loudCount == 0 {
			s.runStart = now
		}
		s.loudCount++
		if s.loudCount < s.cfg.ConfirmationFrames {
			return Event{}, nil
		}
		s.loudCount = 0
		s.silenceStart = time.Time{}
		s.current = &Segment{ID: s.newID(), Start: s.runStart}
		change, _ := s.transitionLocked(now, StateSpeechActive, "speech confirmed")
		return Event{Kind: EventSpeechStarted, Segment: *s.current}, change

	case StateSpeechActive:
		if ttsActive {
			seg := *s.current
			seg.End = now
			s.current = nil
			s.silenceStart = time.Time{}
			change, _ := s.transitionLocked(now, StateListening, "tts started during speech")
			return Event{Kind: EventSegmentAbandoned, Segment: seg}, change
		}
		if loud {
			s.silenceStart = time.Time{}
			return Event{}, nil
		}
		if s.silenceStart.IsZero() {
			s.silenceStart = now
		}
		if now.Sub(s.silenceStart) < s.cfg.SilenceDuration {
			return Event{}, nil
		}
		seg := *s.current
		seg.End = s.silenceStart
		s.current = nil
		s.silenceStart = time.Time{}
		if seg.Duration() < s.cfg.MinSpeechDuration {
			change, _ := s.transitionLocked(now, StateListening, "segment too short")
			return Event{Kind: EventSegmentDiscarded, Segment: seg}, change
		}
		change, _ := s.transitionLocked(now, StateProcessing, "silence confirmed")
		return Event{Kind: EventSegmentClosed, Segment: seg}, change
	}
	// Idle and Processing ignore readings.
	return Event{}, nil
}

// transitionLocked stamps the change with at: the reading time when driven
// by Observe, the wall clock otherwise.
func (s *Segmenter) transitionLocked(at time.Time, to State, reason string) (*StateChange, error) {
	if !transitionValid(s.state, to) {
		return nil, &InvalidTransitionError{From: s.state, To: to}
	}
	change := &StateChange{FromState: s.state, ToState: to, Timestamp: at, Reason: reason}
	s.state = to
	if to != StateSpeechActive {
		s.loudCount = 0
	}
	return change, nil
}

func (s *Segmenter) resetLocked() {
	s.loudCount = 0
	s.runStart = time.Time{}
	s.silenceStart = time.Time{}
	s.current = nil
}

func (s *Segmenter) notify(change *StateChange) {
	if change == nil {
		return
	}
	s.mu.Lock()
	listeners := make([]StateListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnStateChange(*change)
	}
}
