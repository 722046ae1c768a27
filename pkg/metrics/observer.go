package metrics

import "time"

// Event names recorded by the engine.
const (
	EventSpeechStart          = "speech_start"
	EventSegmentClosed        = "segment_closed"
	EventSegmentDiscarded     = "segment_discarded"
	EventSegmentAbandoned     = "segment_abandoned"
	EventTranscriptEmitted    = "transcript_emitted"
	EventTranscriptFiltered   = "transcript_filtered"
	EventTranscribeError      = "transcribe_error"
	EventInterruption         = "interruption"
	EventNativeFinal          = "native_final"
	EventNativeDuplicate      = "native_duplicate"
	EventNativeInterimPromote = "native_interim_promoted"
	EventNativeRetry          = "native_retry"
	EventNativeFallback       = "native_fallback"
	EventVolume               = "volume"
	EventAudioIn              = "audio_in"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a nil-safe shorthand that stamps the event time.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

// MultiObserver fans an event out to several observers.
type MultiObserver struct {
	observers []Observer
}

func NewMultiObserver(observers ...Observer) *MultiObserver {
	out := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return &MultiObserver{observers: out}
}

func (m *MultiObserver) RecordEvent(ev MetricsEvent) {
	for _, o := range m.observers {
		o.RecordEvent(ev)
	}
}

func (m *MultiObserver) Flush() error {
	var first error
	for _, o := range m.observers {
		if f, ok := o.(Flusher); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
