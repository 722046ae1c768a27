package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/codec"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/resilience"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultModel = "whisper-1"

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	// Prompt biases recognition toward expected vocabulary.
	Prompt string
	// Format is the upload container, "flac" (default) or "wav".
	Format  string
	Timeout time.Duration
}

// Retries are left to transcribe.Guarded, so the client never retries on its own.

// Transcriber sends closed segments to the OpenAI audio transcription API.
type Transcriber struct {
	client  openai.Client
	cfg     Config
	encoder codec.Encoder
	logger  *slog.Logger
}

func New(cfg Config) (*Transcriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.New(errorsx.ReasonConfigInvalid, "openai transcriber: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	enc, err := codec.New(cfg.Format)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Transcriber{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		encoder: enc,
		logger:  logging.NewComponentLogger(slog.Default(), "openai_transcriber"),
	}, nil
}

func (t *Transcriber) Name() string { return "openai" }

func (t *Transcriber) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	if len(req.PCM) == 0 {
		return "", transcribe.ErrEmptyAudio
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = audio.TranscriptionRate
	}
	blob, err := t.encoder.Encode(req.PCM, rate)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribeEncode)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(blob), "segment"+t.encoder.Extension(), t.encoder.ContentType()),
		Model: openai.AudioModel(t.cfg.Model),
	}
	lang := req.Language
	if lang == "" {
		lang = t.cfg.Language
	}
	if lang != "" {
		params.Language = openai.String(lang)
	}
	if t.cfg.Prompt != "" {
		params.Prompt = openai.String(t.cfg.Prompt)
	}

	start := time.Now()
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", resilience.RateLimitError{Provider: "openai", Message: apiErr.Error()}
		}
		return "", errorsx.Wrap(fmt.Errorf("openai transcription: %w", err), errorsx.ReasonTranscribe)
	}
	t.logger.Debug("transcription_complete",
		slog.String("session_id", req.SessionID),
		slog.String("segment_id", req.SegmentID),
		slog.Int("audio_bytes", len(blob)),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()))
	return strings.TrimSpace(resp.Text), nil
}

var _ transcribe.Transcriber = (*Transcriber)(nil)
