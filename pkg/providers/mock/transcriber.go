package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
)

// Response is one scripted transcription outcome.
type Response struct {
	Text string
	Err  error
}

// Transcriber replays scripted responses in order; once exhausted it
// returns Default.
type Transcriber struct {
	Default   Response
	Responses []Response
	// Block, when non-nil, is waited on before each call returns.
	Block chan struct{}

	mu       sync.Mutex
	requests []transcribe.Request
}

func NewTranscriber(text string) *Transcriber {
	return &Transcriber{Default: Response{Text: text}}
}

func (t *Transcriber) Name() string { return "mock_transcriber" }

func (t *Transcriber) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	t.mu.Lock()
	t.requests = append(t.requests, transcribe.Request{
		PCM:        append([]byte(nil), req.PCM...),
		SampleRate: req.SampleRate,
		Language:   req.Language,
		SessionID:  req.SessionID,
		SegmentID:  req.SegmentID,
	})
	resp := t.Default
	if len(t.Responses) > 0 {
		resp = t.Responses[0]
		t.Responses = t.Responses[1:]
	}
	block := t.Block
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp.Text, resp.Err
}

func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *Transcriber) Requests() []transcribe.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transcribe.Request(nil), t.requests...)
}

var _ transcribe.Transcriber = (*Transcriber)(nil)
