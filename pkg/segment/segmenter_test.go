package segment

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// frameStep approximates one 4096-sample callback at 48 kHz.
const frameStep = 85 * time.Millisecond

type recordingListener struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *recordingListener) OnStateChange(ev StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, ev)
	r.mu.Unlock()
}

func newStarted(t *testing.T, cfg Config) *Segmenter {
	t.Helper()
	s := New(cfg)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

// feed runs volumes through the segmenter at frameStep spacing and returns
// the non-empty events with the index they fired at.
func feed(s *Segmenter, start time.Time, volumes []float64, tts bool) ([]Event, []int) {
	var events []Event
	var at []int
	for i, v := range volumes {
		ev := s.Observe(start.Add(time.Duration(i)*frameStep), v, tts)
		if ev.Kind != EventNone {
			events = append(events, ev)
			at = append(at, i)
		}
	}
	return events, at
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestQuietInputNeverOpensSegment(t *testing.T) {
	s := newStarted(t, Config{})
	events, _ := feed(s, time.Now(), []float64{0, 1.0, 1.5, 0.3, 1.49, 1.5, 0}, false)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
	if _, open := s.Current(); open {
		t.Fatalf("expected no open segment")
	}
}

func TestShortLoudRunDoesNotConfirm(t *testing.T) {
	s := newStarted(t, Config{})
	events, _ := feed(s, time.Now(), []float64{4, 4, 0, 0, 4, 4, 0}, false)
	if len(events) != 0 {
		t.Fatalf("expected no speech start, got %v", events)
	}
	if s.State() != StateListening {
		t.Fatalf("expected LISTENING, got %s", s.State())
	}
}

func TestScenarioOpenAndClose(t *testing.T) {
	s := newStarted(t, Config{SpeechThreshold: 1.5, ConfirmationFrames: 3, SilenceDuration: 1500 * time.Millisecond, MinSpeechDuration: 100 * time.Millisecond})
	base := time.Now()
	volumes := append([]float64{0, 0, 4, 4, 4}, repeat(0, 30)...)
	events, at := feed(s, base, volumes, false)

	if len(events) != 2 {
		t.Fatalf("expected start and close, got %v", events)
	}
	if events[0].Kind != EventSpeechStarted || at[0] != 4 {
		t.Fatalf("expected speech start at 3rd loud frame (index 4), got %s at %d", events[0].Kind, at[0])
	}
	if !events[0].Segment.Start.Equal(base.Add(2 * frameStep)) {
		t.Fatalf("expected segment start at first loud frame")
	}
	silenceStart := base.Add(5 * frameStep)
	wantClose := 5 + int((1500*time.Millisecond+frameStep-1)/frameStep)
	if events[1].Kind != EventSegmentClosed || at[1] != wantClose {
		t.Fatalf("expected close at index %d, got %s at %d", wantClose, events[1].Kind, at[1])
	}
	if !events[1].Segment.End.Equal(silenceStart) {
		t.Fatalf("expected end at silence start, got %v", events[1].Segment.End)
	}
	if events[1].Segment.ID == "" || events[1].Segment.ID != events[0].Segment.ID {
		t.Fatalf("expected one segment id across start and close")
	}
	if s.State() != StateProcessing {
		t.Fatalf("expected PROCESSING, got %s", s.State())
	}
}

func TestShortPauseKeepsOneSegment(t *testing.T) {
	s := newStarted(t, Config{MinSpeechDuration: time.Millisecond})
	volumes := []float64{4, 4, 4, 4}
	volumes = append(volumes, repeat(0, 10)...) // 850ms pause
	volumes = append(volumes, 4, 4)
	volumes = append(volumes, repeat(0, 25)...)
	events, _ := feed(s, time.Now(), volumes, false)
	if len(events) != 2 || events[0].Kind != EventSpeechStarted || events[1].Kind != EventSegmentClosed {
		t.Fatalf("expected a single start/close pair, got %v", events)
	}
	if d := events[1].Segment.Duration(); d < 15*frameStep {
		t.Fatalf("expected segment to span the pause, got %s", d)
	}
}

func TestShortSegmentDiscarded(t *testing.T) {
	s := newStarted(t, Config{MinSpeechDuration: time.Second})
	events, _ := feed(s, time.Now(), append([]float64{4, 4, 4}, repeat(0, 25)...), false)
	if len(events) != 2 || events[1].Kind != EventSegmentDiscarded {
		t.Fatalf("expected discard, got %v", events)
	}
	if s.State() != StateListening {
		t.Fatalf("expected LISTENING after discard, got %s", s.State())
	}
}

func TestTTSActiveBlocksSpeechStart(t *testing.T) {
	s := newStarted(t, Config{})
	events, _ := feed(s, time.Now(), repeat(10, 20), true)
	if len(events) != 0 {
		t.Fatalf("expected no events while tts active, got %v", events)
	}
	if s.State() != StateListening {
		t.Fatalf("expected LISTENING, got %s", s.State())
	}
}

func TestTTSDuringSpeechAbandonsSegment(t *testing.T) {
	s := newStarted(t, Config{})
	base := time.Now()
	feed(s, base, []float64{4, 4, 4}, false)
	ev := s.Observe(base.Add(3*frameStep), 4, true)
	if ev.Kind != EventSegmentAbandoned {
		t.Fatalf("expected abandon, got %s", ev.Kind)
	}
	if s.State() != StateListening {
		t.Fatalf("expected LISTENING, got %s", s.State())
	}
}

func TestProcessingIgnoresReadingsUntilSettled(t *testing.T) {
	s := newStarted(t, Config{MinSpeechDuration: time.Millisecond})
	base := time.Now()
	feed(s, base, append([]float64{4, 4, 4}, repeat(0, 25)...), false)
	if s.State() != StateProcessing {
		t.Fatalf("expected PROCESSING, got %s", s.State())
	}
	if events, _ := feed(s, base.Add(time.Minute), repeat(8, 10), false); len(events) != 0 {
		t.Fatalf("expected readings ignored while processing, got %v", events)
	}
	if err := s.Settle(); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if events, _ := feed(s, base.Add(2*time.Minute), repeat(8, 3), false); len(events) != 1 {
		t.Fatalf("expected a new segment after settle, got %v", events)
	}
}

func TestTransitionsAndListeners(t *testing.T) {
	s := New(Config{})
	l := &recordingListener{}
	s.AddListener(l)

	var invalid *InvalidTransitionError
	if err := s.Settle(); !errors.As(err, &invalid) || invalid.From != StateIdle {
		t.Fatalf("expected invalid transition from IDLE, got %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatalf("expected second start to be rejected")
	}
	feed(s, time.Now(), []float64{4, 4, 4}, false)
	s.Stop()
	s.Stop()
	if s.State() != StateIdle {
		t.Fatalf("expected IDLE, got %s", s.State())
	}

	want := []State{StateListening, StateSpeechActive, StateIdle}
	if len(l.changes) != len(want) {
		t.Fatalf("expected %d changes, got %v", len(want), l.changes)
	}
	for i, st := range want {
		if l.changes[i].ToState != st {
			t.Fatalf("change %d: expected %s, got %s", i, st, l.changes[i].ToState)
		}
	}
}

func TestStateChangeUsesReadingTime(t *testing.T) {
	s := newStarted(t, Config{})
	l := &recordingListener{}
	s.AddListener(l)

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	feed(s, base, []float64{4, 4, 4}, false)
	if len(l.changes) != 1 || l.changes[0].ToState != StateSpeechActive {
		t.Fatalf("unexpected changes %v", l.changes)
	}
	if want := base.Add(2 * frameStep); !l.changes[0].Timestamp.Equal(want) {
		t.Fatalf("expected timestamp %s, got %s", want, l.changes[0].Timestamp)
	}
}

func TestStateString(t *testing.T) {
	if StateSpeechActive.String() != "SPEECH_ACTIVE" || State(42).String() != "UNKNOWN" {
		t.Fatalf("unexpected state names")
	}
}
