package segment

import "time"

// Segment is one contiguous span of user speech.
type Segment struct {
	ID    string
	Start time.Time
	// End is zero until the segment closes.
	End time.Time
	// Audio is filled in by the pipeline from the recorder on close.
	Audio []byte
}

// Duration is End minus Start, or zero while the segment is open.
func (s Segment) Duration() time.Duration {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

func (s Segment) Open() bool { return s.End.IsZero() }

type EventKind int

const (
	EventNone EventKind = iota
	// EventSpeechStarted fires once per segment when speech is confirmed.
	EventSpeechStarted
	// EventSegmentClosed means the segment is long enough to transcribe.
	EventSegmentClosed
	// EventSegmentDiscarded means the segment was shorter than the minimum.
	EventSegmentDiscarded
	// EventSegmentAbandoned means TTS started while the user was speaking.
	EventSegmentAbandoned
)

func (k EventKind) String() string {
	switch k {
	case EventSpeechStarted:
		return "speech_started"
	case EventSegmentClosed:
		return "segment_closed"
	case EventSegmentDiscarded:
		return "segment_discarded"
	case EventSegmentAbandoned:
		return "segment_abandoned"
	default:
		return "none"
	}
}

type Event struct {
	Kind    EventKind
	Segment Segment
}
