package stt

import (
	"testing"

	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
)

func TestTranscriptFrame(t *testing.T) {
	cfg := Config{StreamID: "s1", SessionID: "sess"}
	f := NewTranscriptFrame(cfg, "hello", true)
	if !IsFinal(f) || f.Text() != "hello" || f.Meta()[frames.MetaSessionID] != "sess" {
		t.Fatalf("unexpected frame meta %v", f.Meta())
	}
	if IsFinal(NewTranscriptFrame(cfg, "hel", false)) {
		t.Fatalf("expected interim frame")
	}
}

func TestErrorFrameRecoverability(t *testing.T) {
	cfg := Config{StreamID: "s1"}
	e, ok := ErrorOf(NewErrorFrame(cfg, errorsx.ReasonNativeNetwork, "socket closed"))
	if !ok || !e.Recoverable || e.Message != "socket closed" {
		t.Fatalf("expected recoverable network error, got %+v", e)
	}
	e, _ = ErrorOf(NewErrorFrame(cfg, errorsx.ReasonNativeFatal, "bad key"))
	if e.Recoverable {
		t.Fatalf("expected fatal error")
	}
	if _, ok := ErrorOf(NewSpeechStartFrame(cfg)); ok {
		t.Fatalf("expected non-error frame to be rejected")
	}
}
