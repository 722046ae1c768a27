package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSinkHandlerFormatsLine(t *testing.T) {
	var lines []string
	logger := slog.New(NewSinkHandler(func(line string) { lines = append(lines, line) }, slog.LevelDebug))
	logger.With("component", "segmenter").Debug("segment_closed", "segment_id", "seg-1", "bytes", 3200)

	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	want := "DEBUG segment_closed component=segmenter segment_id=seg-1 bytes=3200"
	if lines[0] != want {
		t.Fatalf("unexpected line %q", lines[0])
	}
}

func TestWithDebugSinkTeesToBase(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	var lines []string
	logger := WithDebugSink(base, func(line string) { lines = append(lines, line) })

	logger.Debug("volume", "value", 1.5)
	logger.Info("speech_start")

	if len(lines) != 2 {
		t.Fatalf("expected sink to receive debug and info, got %d", len(lines))
	}
	out := buf.String()
	if strings.Contains(out, "volume") {
		t.Fatalf("base logger should filter debug records")
	}
	if !strings.Contains(out, "speech_start") {
		t.Fatalf("base logger missing info record")
	}
}

func TestWithDebugSinkNilReturnsBase(t *testing.T) {
	base := slog.Default()
	if WithDebugSink(base, nil) != base {
		t.Fatalf("expected base logger when no sink is set")
	}
}

func TestParseLevelAndInit(t *testing.T) {
	if lvl, ok := ParseLevel("warning"); !ok || lvl != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
	if _, ok := ParseLevel("verbose"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	prev := slog.Default()
	defer slog.SetDefault(prev)
	var buf bytes.Buffer
	logger := initLogger(&buf, "verbose", "json")
	logger.Info("ready")
	if !strings.Contains(buf.String(), `"msg":"ready"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}

func TestClipText(t *testing.T) {
	if got := ClipText("hello world", 5); got != "hello..." {
		t.Fatalf("unexpected clip %q", got)
	}
	if got := ClipText("hi", 5); got != "hi" {
		t.Fatalf("unexpected clip %q", got)
	}
}
