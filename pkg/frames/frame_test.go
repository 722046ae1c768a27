package frames

import (
	"testing"
	"time"
)

func TestAudioFrameSamplesDownmix(t *testing.T) {
	// Two stereo frames: (100, 300) and (-200, 0).
	data := []byte{100, 0, 44, 1, 0x38, 0xff, 0, 0}
	f := NewAudioFrame("s1", 1, data, 16000, 2, nil)
	got := f.Samples()
	if len(got) != 2 || got[0] != 200 || got[1] != -100 {
		t.Fatalf("unexpected samples %v", got)
	}
	if f.Duration() != 125*time.Microsecond {
		t.Fatalf("unexpected duration %s", f.Duration())
	}
}

func TestMetaIsCopied(t *testing.T) {
	meta := map[string]string{MetaSessionID: "s1"}
	f := NewTextFrame("stream-1", 1, "hello", meta)
	meta[MetaSessionID] = "changed"
	got := f.Meta()
	if got[MetaSessionID] != "s1" || got[MetaStreamID] != "stream-1" {
		t.Fatalf("unexpected meta %v", got)
	}
	got[MetaSessionID] = "mutated"
	if f.Meta()[MetaSessionID] != "s1" {
		t.Fatalf("frame meta must not be shared with callers")
	}
}

func TestDataReturnsCopy(t *testing.T) {
	f := NewAudioFrame("", 0, []byte{1, 2}, 16000, 1, nil)
	d := f.Data()
	d[0] = 9
	if f.RawPayload()[0] != 1 {
		t.Fatalf("Data must copy the payload")
	}
	if _, ok := f.Meta()[MetaStreamID]; ok {
		t.Fatalf("empty stream id must not be set")
	}
}

func TestPTSGenPerStream(t *testing.T) {
	g := NewPTSGen()
	a1 := g.Next("a")
	a2 := g.Next("a")
	b1 := g.Next("b")
	if a2 <= a1 || b1 != a1 {
		t.Fatalf("expected independent monotonic streams, got %d %d %d", a1, a2, b1)
	}
}

func TestControlAndSystemFrames(t *testing.T) {
	cf := NewControlFrame("s1", 5, ControlTTSStart, nil)
	if cf.Kind() != KindControl || cf.Code() != ControlTTSStart || cf.PTS() != 5 {
		t.Fatalf("unexpected control frame %#v", cf)
	}
	sf := NewSystemFrame("s1", 6, SystemMicError, map[string]string{MetaErrorName: "NotAllowedError"})
	if sf.Kind() != KindSystem || sf.Name() != SystemMicError || sf.Meta()[MetaErrorName] != "NotAllowedError" {
		t.Fatalf("unexpected system frame %#v", sf)
	}
}
