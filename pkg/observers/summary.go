package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/metrics"
)

// SessionSummary aggregates one session's detection activity.
type SessionSummary struct {
	SessionID        string  `json:"session_id"`
	SpeechSeconds    float64 `json:"speech_seconds"`
	Segments         int     `json:"segments"`
	Discarded        int     `json:"discarded"`
	Abandoned        int     `json:"abandoned"`
	Transcripts      int     `json:"transcripts"`
	Filtered         int     `json:"filtered"`
	TranscribeErrors int     `json:"transcribe_errors"`
	Interruptions    int     `json:"interruptions"`
	NativeFallbacks  int     `json:"native_fallbacks"`
	RecordedAtUTC    string  `json:"recorded_at_utc"`
}

// SummaryObserver writes <session>.summary.json files on Close.
type SummaryObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*SessionSummary
}

func NewSummaryObserver(dir string) *SummaryObserver {
	return &SummaryObserver{dir: dir, stats: make(map[string]*SessionSummary)}
}

func (o *SummaryObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[frames.MetaSessionID]
	if id == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats[id]
	if s == nil {
		s = &SessionSummary{SessionID: id}
		o.stats[id] = s
	}
	switch ev.Name {
	case metrics.EventSegmentClosed:
		s.Segments++
		s.SpeechSeconds += ev.Value
	case metrics.EventSegmentDiscarded:
		s.Discarded++
	case metrics.EventSegmentAbandoned:
		s.Abandoned++
	case metrics.EventTranscriptEmitted:
		s.Transcripts++
	case metrics.EventTranscriptFiltered:
		s.Filtered++
	case metrics.EventTranscribeError:
		s.TranscribeErrors++
	case metrics.EventInterruption:
		s.Interruptions++
	case metrics.EventNativeFallback:
		s.NativeFallbacks++
	}
}

// Summary returns a copy of the running totals for a session.
func (o *SummaryObserver) Summary(sessionID string) (SessionSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.stats[sessionID]
	if !ok {
		return SessionSummary{}, false
	}
	return *s, true
}

func (o *SummaryObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".summary.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*SummaryObserver)(nil)
