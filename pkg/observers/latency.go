package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/metrics"
)

// LatencyObserver logs, per session, how long the user spoke and how long
// the transcription took after the segment closed.
type LatencyObserver struct {
	mu       sync.Mutex
	sessions map[string]*trace
	log      *slog.Logger
}

type trace struct {
	speechStart time.Time
	closed      time.Time
	segmentID   string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		sessions: make(map[string]*trace),
		log:      log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ev.Tags[frames.MetaSessionID]
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.sessions[sessionID]
	if t == nil {
		t = &trace{}
		o.sessions[sessionID] = t
	}
	switch ev.Name {
	case metrics.EventSpeechStart:
		t.speechStart = ev.Time
		t.closed = time.Time{}
	case metrics.EventSegmentClosed:
		t.closed = ev.Time
		t.segmentID = ev.Tags[frames.MetaSegmentID]
	case metrics.EventSegmentDiscarded, metrics.EventSegmentAbandoned:
		delete(o.sessions, sessionID)
	case metrics.EventTranscriptEmitted, metrics.EventTranscriptFiltered, metrics.EventTranscribeError:
		o.logLocked(sessionID, ev, t)
		delete(o.sessions, sessionID)
	}
}

func (o *LatencyObserver) logLocked(sessionID string, ev metrics.MetricsEvent, t *trace) {
	o.log.Info("latency",
		"session_id", sessionID,
		"segment_id", t.segmentID,
		"outcome", ev.Name,
		"source", ev.Tags[frames.MetaSource],
		"speech_ms", durationMs(t.speechStart, t.closed),
		"transcribe_ms", durationMs(t.closed, ev.Time),
		"total_ms", durationMs(t.speechStart, ev.Time),
	)
}

// Pending reports how many sessions have an unfinished trace.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
