package transcribe

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("empty audio")

// Request is one closed segment.
type Request struct {
	// PCM is mono little-endian PCM16.
	PCM        []byte
	SampleRate int
	Language   string
	SessionID  string
	SegmentID  string
}

// Transcriber is the external, one-shot transcription call. An empty result
// with a nil error means nothing was recognized.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Transcriber.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Transcribe(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
