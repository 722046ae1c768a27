package observers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/bargein/pkg/metrics"
	"github.com/harunnryd/bargein/pkg/redact"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	tags := map[string]string{"session_id": "sess/1", "trace_id": "trace-1"}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventVolume, Time: time.Now(), Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSegmentClosed, Time: time.Now(), Value: 1.4, Tags: tags})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "sess_1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, metrics.EventSegmentClosed) {
		t.Fatalf("expected segment_closed event in file")
	}
	if strings.Contains(out, `"event":"volume"`) {
		t.Fatalf("volume samples should not be written")
	}
}

func TestTimelineObserverRedactsTranscript(t *testing.T) {
	redact.SetEnabled(true)
	defer redact.SetEnabled(false)

	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventTranscriptEmitted,
		Time:   time.Now(),
		Tags:   map[string]string{"session_id": "s2"},
		Fields: map[string]any{"text": "mail me at jane@example.com"},
	})
	if err := obs.CloseSession("s2"); err != nil {
		t.Fatalf("close session: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "s2.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(b), "jane@example.com") {
		t.Fatalf("expected email to be redacted, got %s", b)
	}
}
