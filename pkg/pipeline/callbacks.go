package pipeline

import (
	"log/slog"

	"github.com/harunnryd/bargein/pkg/interrupt"
)

// Source names which path produced a transcript.
type Source string

const (
	SourceRawPCM Source = "rawPcmEngine"
	SourceNative Source = "nativeEngine"
)

type Transcript struct {
	Text   string
	Source Source
}

// Callbacks are the pipeline's outputs. Every field is optional. Callbacks
// run on the goroutine that produced the event and must not block.
type Callbacks struct {
	OnSpeechStart           func()
	OnTranscriptionComplete func(text string, source Source)
	OnInterruption          func(ev interrupt.Event)
	OnError                 func(message string)
	// Debug receives formatted log lines for a client-side console.
	Debug func(line string)
}

func (c Callbacks) speechStart() {
	if c.OnSpeechStart != nil {
		safeCall("on_speech_start", c.OnSpeechStart)
	}
}

func (c Callbacks) transcript(t Transcript) {
	if c.OnTranscriptionComplete != nil {
		safeCall("on_transcription_complete", func() { c.OnTranscriptionComplete(t.Text, t.Source) })
	}
}

func (c Callbacks) interruption(ev interrupt.Event) {
	if c.OnInterruption != nil {
		safeCall("on_interruption", func() { c.OnInterruption(ev) })
	}
}

func (c Callbacks) error(message string) {
	if c.OnError != nil {
		safeCall("on_error", func() { c.OnError(message) })
	}
}

func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("callback_panic", slog.String("callback", name), slog.Any("panic", r))
		}
	}()
	fn()
}
