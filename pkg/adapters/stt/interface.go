package stt

import (
	"context"

	"github.com/harunnryd/bargein/pkg/frames"
)

// StreamingSTT defines the contract for a continuous recognition engine.
//
// Results carries TextFrames (interim and final, see IsFinal) and
// ControlFrames: ControlSpeechStart when the engine detects speech,
// ControlFlush at utterance end and ControlError for failures. The channel
// is closed after Close.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the engine connection.
	Start(ctx context.Context) error
	// Close shuts down the engine connection.
	Close() error
	// SendAudio sends PCM16 audio to the engine.
	SendAudio(frame frames.AudioFrame) error
	// Results returns a channel of transcription/control frames.
	Results() <-chan frames.Frame
}

// Config contains vendor-agnostic engine configuration.
type Config struct {
	StreamID   string
	SessionID  string
	TraceID    string
	SampleRate int
	Language   string
}

// Factory builds a fresh engine; the native adapter calls it on every restart.
type Factory func(cfg Config) (StreamingSTT, error)
