package pipeline

import (
	"context"
	"log/slog"

	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/native"
	"github.com/harunnryd/bargein/pkg/postfilter"
)

// Native runs a continuous recognition engine and converges on the same
// post-filter and callbacks as RawPCM.
type Native struct {
	deps    Deps
	logger  *slog.Logger
	filter  *postfilter.Filter
	adapter *native.Adapter
}

func NewNative(opts Options, deps Deps) *Native {
	opts = opts.withDefaults()
	deps = deps.withDefaults()
	n := &Native{
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "native_strategy").With(slog.String("session_id", deps.SessionID)),
		filter: postfilter.New(opts.Filter),
	}
	n.adapter = native.New(opts.Native, native.Deps{
		Factory:     deps.NativeFactory,
		Transcriber: deps.Transcriber,
		TTS:         deps.TTS,
		Observer:    deps.Observer,
		Logger:      deps.Logger,
		StreamID:    deps.StreamID,
		SessionID:   deps.SessionID,
		TraceID:     deps.TraceID,
		Events: native.Events{
			OnSpeechStart: deps.Callbacks.speechStart,
			OnFinal: func(text string) {
				emitTranscript(n.logger, n.deps, n.filter, "", text, SourceNative)
			},
			OnFallback: func(text string) {
				emitTranscript(n.logger, n.deps, n.filter, "", text, SourceRawPCM)
			},
			OnInterruption: func(ev interrupt.Event) {
				deps.Callbacks.interruption(ev)
			},
			OnError: deps.Callbacks.error,
		},
	})
	return n
}

func (n *Native) Name() string { return string(SourceNative) }

func (n *Native) Start(ctx context.Context) error {
	if err := n.adapter.Start(ctx); err != nil {
		return err
	}
	n.logger.Info("native_started")
	return nil
}

func (n *Native) HandleAudio(frame frames.AudioFrame) {
	n.adapter.Observe(n.deps.Clock(), frame)
}

func (n *Native) Close() error {
	return n.adapter.Close()
}

// Adapter exposes the underlying native adapter.
func (n *Native) Adapter() *native.Adapter { return n.adapter }
