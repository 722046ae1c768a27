package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/adapters/tts"
	"github.com/harunnryd/bargein/pkg/device"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/metrics"
)

// Strategy is one detection path. HandleAudio receives mono PCM16 at
// Options.SampleRate from a single goroutine and never blocks on I/O.
type Strategy interface {
	Name() string
	Start(ctx context.Context) error
	HandleAudio(frame frames.AudioFrame)
	Close() error
}

// Deps are the collaborators shared by both strategies.
type Deps struct {
	Profile     device.Profile
	Transcriber transcribe.Transcriber
	// NativeFactory builds native engines; nil forces the raw PCM path.
	NativeFactory stt.Factory
	TTS           tts.Activity
	Observer      metrics.Observer
	Logger        *slog.Logger
	Callbacks     Callbacks
	Artifacts     *ArtifactWriter

	SessionID string
	StreamID  string
	TraceID   string

	// Clock stamps readings; tests replace it.
	Clock func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.TTS == nil {
		d.TTS = tts.Inactive{}
	}
	if d.Observer == nil {
		d.Observer = metrics.NoopObserver{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = logging.WithDebugSink(d.Logger, d.Callbacks.Debug)
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

func (d Deps) tags(segmentID string) map[string]string {
	tags := map[string]string{frames.MetaSessionID: d.SessionID}
	if segmentID != "" {
		tags[frames.MetaSegmentID] = segmentID
	}
	if d.TraceID != "" {
		tags[frames.MetaTraceID] = d.TraceID
	}
	return tags
}

// NewStrategy picks the detection path for the profile. The choice is made
// once per pipeline.
func NewStrategy(opts Options, deps Deps) Strategy {
	opts = opts.withDefaults()
	deps = deps.withDefaults()
	if deps.Profile.Strategy == device.StrategyNative && deps.NativeFactory != nil {
		return NewNative(opts, deps)
	}
	return NewRawPCM(opts, deps)
}
