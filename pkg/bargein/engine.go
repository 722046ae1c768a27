package bargein

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/adapters/tts"
	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/device"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/metrics"
	"github.com/harunnryd/bargein/pkg/observers"
	"github.com/harunnryd/bargein/pkg/pipeline"
	"github.com/harunnryd/bargein/pkg/redact"
	"github.com/harunnryd/bargein/pkg/runner"
	"github.com/harunnryd/bargein/pkg/transports"
)

const segmentsDir = "segments"

type Engine struct {
	cfg       Config
	registry  *pipeline.SessionRegistry
	transport transports.Transport
	providers *ProviderRegistry
	runner    *runner.LifecycleRunner
	asyncObs  *metrics.AsyncObserver
	timeline  *observers.TimelineObserver
	base      *slog.Logger
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	transcriber   transcribe.Transcriber
	nativeFactory stt.Factory
	artifacts     *pipeline.ArtifactWriter
	clock         func() time.Time

	// sessions holds the per-session TTS signal and device profile; the
	// controller itself lives in registry.
	sessions sync.Map
}

type sessionState struct {
	signal  *tts.Signal
	profile device.Profile
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Transport transports.Transport
	// Logger replaces the process logger built from Config.
	Logger *slog.Logger
	// Observers are added next to the configured ones.
	Observers []metrics.Observer
	// Clock stamps inbound audio; tests replace it.
	Clock func() time.Time
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	providers := opts.Providers
	if providers == nil {
		providers = NewDefaultProviderRegistry()
	}

	logger.Info("bargein_init",
		"environment", cfg.Environment,
		"native_provider", cfg.Vendors.Native.Provider,
		"transcriber_provider", cfg.Vendors.Transcriber.Provider,
		"transport", cfg.Transports.Provider,
	)

	transcriber, err := providers.BuildTranscriber(cfg.Vendors.Transcriber.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build transcriber: %w", err)
	}
	nativeFactory, err := providers.BuildNativeFactory(cfg.Vendors.Native.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build native engine: %w", err)
	}

	obsList := []metrics.Observer{
		observers.NewLatencyObserver(logger),
		observers.NewLoggerObserver(logger),
	}
	obsList = append(obsList, opts.Observers...)
	var (
		timelineObs *observers.TimelineObserver
		summaryObs  *observers.SummaryObserver
		jsonlObs    *metrics.JSONLObserver
		metricsFile *os.File
		artifacts   *pipeline.ArtifactWriter
	)
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		purgeArtifacts(logger, dir, cfg.Observability.RetentionDays)
		timelineObs = observers.NewTimelineObserver(dir)
		summaryObs = observers.NewSummaryObserver(dir)
		obsList = append(obsList, timelineObs, summaryObs)
		if cfg.Observability.RecordAudio {
			artifacts, err = pipeline.NewArtifactWriter(filepath.Join(dir, segmentsDir), cfg.Observability.ArtifactFormat)
			if err != nil {
				return nil, fmt.Errorf("artifacts: %w", err)
			}
		}
	}
	if path := strings.TrimSpace(cfg.Observability.MetricsFile); path != "" {
		metricsFile, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("metrics file: %w", err)
		}
		jsonlObs = metrics.NewJSONLObserver(metricsFile)
		obsList = append(obsList, jsonlObs)
	}
	multiObs := metrics.NewMultiObserver(obsList...)
	sampled := metrics.NewSamplingObserver(multiObs, cfg.Observability.VolumeSampleRate, metrics.EventVolume)
	asyncObs := metrics.NewAsyncObserver(sampled, 2048)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:           cfg,
		transport:     opts.Transport,
		providers:     providers,
		asyncObs:      asyncObs,
		timeline:      timelineObs,
		base:          logger,
		logger:        logging.NewComponentLogger(logger, "engine"),
		ctx:           ctx,
		cancel:        cancel,
		transcriber:   transcriber,
		nativeFactory: nativeFactory,
		artifacts:     artifacts,
		clock:         opts.Clock,
	}
	e.registry = pipeline.NewSessionRegistry(e.buildController)

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Bargein Engine Ready", "native_enabled", nativeFactory != nil}
			if rr, ok := opts.Transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			e.logger.Info("engine_ready", fields...)
		},
		OnStop: func() {
			if err := asyncObs.Close(); err != nil {
				e.logger.Warn("metrics_flush_failed", "error", err)
			}
			if n := asyncObs.Dropped(); n > 0 {
				e.logger.Warn("metrics_events_dropped", "dropped", n, "delivered", asyncObs.Delivered())
			}
			if timelineObs != nil {
				_ = timelineObs.Close()
			}
			if summaryObs != nil {
				if err := summaryObs.Close(); err != nil {
					e.logger.Warn("summary_write_failed", "error", err)
				}
			}
			if jsonlObs != nil {
				_ = jsonlObs.Flush()
			}
			if metricsFile != nil {
				_ = metricsFile.Close()
			}
			e.logger.Info("shutdown", "goroutines", runtime.NumGoroutine(), "active_sessions", e.registry.Count())
		},
	}

	drainer := runner.DrainerFunc(func() error {
		if e.transport != nil {
			_ = e.transport.Stop()
		}
		e.registry.SetDraining(true)
		e.registry.CloseAll()
		e.sessions.Range(func(key, _ any) bool {
			e.sessions.Delete(key)
			return true
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if !e.registry.WaitForEmpty(ctx, 200*time.Millisecond) {
			return runner.ErrDrainTimeout
		}
		return nil
	})
	e.runner = runner.NewLifecycleRunner(drainer, hooks, 30*time.Second)
	return e, nil
}

// purgeArtifacts applies retention to the artifacts dir and every per-session
// segment directory under it.
func purgeArtifacts(logger *slog.Logger, dir string, days int) {
	maxAge := observers.RetentionDays(days)
	if maxAge <= 0 {
		return
	}
	removed, err := observers.PurgeArtifacts(dir, maxAge, ".jsonl", ".json")
	segRoot := filepath.Join(dir, segmentsDir)
	entries, _ := os.ReadDir(segRoot)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, perr := observers.PurgeArtifacts(filepath.Join(segRoot, entry.Name()), maxAge, ".flac", ".wav")
		removed += n
		err = errors.Join(err, perr)
	}
	if err != nil {
		logger.Warn("artifact_purge_failed", "error", err)
	}
	if removed > 0 {
		logger.Info("artifacts_purged", "removed", removed, "retention_days", days)
	}
}

func (e *Engine) buildController(ctx context.Context, sessionID, streamID, traceID string) (*pipeline.Controller, error) {
	st := e.state(sessionID)
	deps := pipeline.Deps{
		Profile:       st.profile,
		Transcriber:   e.transcriber,
		NativeFactory: e.nativeFactory,
		TTS:           st.signal,
		Observer:      e.asyncObs,
		Logger:        e.base.With("trace_id", traceID),
		Callbacks:     e.callbacks(sessionID, streamID, traceID),
		Artifacts:     e.artifacts,
		SessionID:     sessionID,
		StreamID:      streamID,
		TraceID:       traceID,
		Clock:         e.clock,
	}
	return pipeline.NewController(e.cfg.PipelineOptions(), deps), nil
}

func (e *Engine) state(sessionID string) *sessionState {
	if v, ok := e.sessions.Load(sessionID); ok {
		return v.(*sessionState)
	}
	st := &sessionState{signal: tts.NewSignal(), profile: e.profileFor(nil)}
	v, _ := e.sessions.LoadOrStore(sessionID, st)
	return v.(*sessionState)
}

// profileFor classifies the device signals a client sent with its start
// message.
func (e *Engine) profileFor(meta map[string]string) device.Profile {
	s := device.Signals{
		UserAgent:              meta[frames.MetaUserAgent],
		Platform:               meta[frames.MetaPlatform],
		InputDeviceName:        meta[frames.MetaDevice],
		NativeEngineConfigured: e.nativeFactory != nil,
	}
	if v, err := strconv.ParseBool(meta[frames.MetaNativeSpeech]); err == nil {
		s.NativeSpeechAPI = &v
	}
	if n, err := strconv.Atoi(meta[frames.MetaTouchPoints]); err == nil {
		s.MaxTouchPoints = n
	}
	return device.Detect(s)
}

func (e *Engine) callbacks(sessionID, streamID, traceID string) pipeline.Callbacks {
	base := func() map[string]string {
		return map[string]string{
			frames.MetaSessionID: sessionID,
			frames.MetaTraceID:   traceID,
		}
	}
	cb := pipeline.Callbacks{
		OnSpeechStart: func() {
			e.send(frames.NewControlFrame(streamID, time.Now().UnixNano(), frames.ControlSpeechStart, base()))
		},
		OnTranscriptionComplete: func(text string, source pipeline.Source) {
			meta := base()
			meta[frames.MetaIsFinal] = "true"
			meta[frames.MetaTranscriptSource] = string(source)
			e.send(frames.NewTextFrame(streamID, time.Now().UnixNano(), text, meta))
		},
		OnInterruption: func(ev interrupt.Event) {
			f := interrupt.NewInterruptFrame(streamID, ev)
			meta := f.Meta()
			for k, v := range base() {
				meta[k] = v
			}
			e.send(frames.NewControlFrame(streamID, f.PTS(), f.Code(), meta))
		},
		OnError: func(message string) {
			meta := base()
			meta[frames.MetaErrorMessage] = message
			e.send(frames.NewControlFrame(streamID, time.Now().UnixNano(), frames.ControlError, meta))
		},
	}
	if e.cfg.Observability.ClientDebug {
		cb.Debug = func(line string) {
			meta := base()
			meta[frames.MetaDebugLine] = line
			e.send(frames.NewSystemFrame(streamID, time.Now().UnixNano(), frames.SystemDebug, meta))
		}
	}
	return cb
}

func (e *Engine) send(f frames.Frame) {
	if e.transport == nil {
		return
	}
	if err := e.transport.Send(f); err != nil {
		e.logger.Warn("transport_send_failed", "reason", "transport_send", "error", err)
	}
}

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.transport != nil {
		if err := e.transport.Start(ctx); err != nil {
			return err
		}
		go e.routeTransport(ctx)
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

func (e *Engine) routeTransport(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			e.HandleFrame(f)
		}
	}
}

// HandleFrame routes one inbound transport frame to its session. Frames of
// one session must arrive in order.
func (e *Engine) HandleFrame(f frames.Frame) {
	meta := f.Meta()
	sessionID := meta[frames.MetaSessionID]
	if sessionID == "" {
		return
	}
	switch fr := f.(type) {
	case frames.SystemFrame:
		switch fr.Name() {
		case frames.SystemStart:
			_, _ = e.openSession(sessionID, meta)
		case frames.SystemStop:
			e.closeSession(sessionID)
		case frames.SystemMicError:
			acq := audio.ClassifyBrowser(meta[frames.MetaErrorName], meta[frames.MetaErrorMessage])
			if sess, ok := e.registry.Get(sessionID); ok {
				sess.Controller.Fail(acq)
			} else {
				e.callbacks(sessionID, meta[frames.MetaStreamID], meta[frames.MetaTraceID]).OnError(acq.Message())
			}
			e.closeSession(sessionID)
		}
	case frames.ControlFrame:
		switch fr.Code() {
		case frames.ControlTTSStart:
			e.state(sessionID).signal.Set(true)
		case frames.ControlTTSStop:
			e.state(sessionID).signal.Set(false)
		}
	case frames.AudioFrame:
		if e.cfg.Observability.RecordAudio && e.asyncObs != nil {
			e.asyncObs.RecordEvent(metrics.MetricsEvent{
				Name: metrics.EventAudioIn,
				Time: time.Now(),
				Tags: map[string]string{
					frames.MetaSessionID: sessionID,
					frames.MetaTraceID:   meta[frames.MetaTraceID],
					"component":          "transport",
				},
				Fields: map[string]any{
					"sample_rate": fr.Rate(),
					"bytes":       len(fr.RawPayload()),
					"payload_b64": base64.StdEncoding.EncodeToString(fr.RawPayload()),
				},
			})
		}
		sess, ok := e.registry.Get(sessionID)
		if !ok {
			var err error
			sess, err = e.openSession(sessionID, meta)
			if err != nil || sess == nil {
				return
			}
		}
		sess.Controller.Feed(fr)
	}
}

// OpenSession starts a pipeline for sessionID with the device signals in meta.
func (e *Engine) OpenSession(sessionID string, meta map[string]string) (*pipeline.Session, error) {
	return e.openSession(sessionID, meta)
}

func (e *Engine) openSession(sessionID string, meta map[string]string) (*pipeline.Session, error) {
	if sess, ok := e.registry.Get(sessionID); ok {
		return sess, nil
	}
	if e.registry.Draining() {
		return nil, fmt.Errorf("engine draining")
	}
	streamID := meta[frames.MetaStreamID]
	if streamID == "" {
		streamID = sessionID
	}
	traceID := meta[frames.MetaTraceID]
	if traceID == "" {
		traceID = uuid.NewString()
	}
	st := &sessionState{signal: tts.NewSignal(), profile: e.profileFor(meta)}
	if v, loaded := e.sessions.LoadOrStore(sessionID, st); loaded {
		// TTS may have been signalled before start; keep that signal.
		prev := v.(*sessionState)
		prev.profile = st.profile
	}
	sess, created, err := e.registry.GetOrCreate(sessionID, streamID, traceID)
	if err != nil {
		e.sessions.Delete(sessionID)
		e.logger.Error("session_start_failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	if created {
		e.logger.Info("session_started",
			"session_id", sessionID,
			"trace_id", traceID,
			"strategy", sess.Controller.Strategy().Name())
	}
	return sess, nil
}

// CloseSession tears down a session's pipeline.
func (e *Engine) CloseSession(sessionID string) {
	e.closeSession(sessionID)
}

func (e *Engine) closeSession(sessionID string) {
	if _, ok := e.registry.Get(sessionID); ok {
		e.registry.Remove(sessionID)
		e.logger.Info("session_ended", "session_id", sessionID)
	}
	e.sessions.Delete(sessionID)
	if e.timeline != nil {
		_ = e.timeline.CloseSession(sessionID)
	}
}

// TTSSignal returns the playback signal of a session, creating it if needed.
func (e *Engine) TTSSignal(sessionID string) *tts.Signal {
	return e.state(sessionID).signal
}

func (e *Engine) ProviderRegistry() *ProviderRegistry {
	return e.providers
}

func (e *Engine) Transport() transports.Transport {
	return e.transport
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Registry() *pipeline.SessionRegistry {
	return e.registry
}

func (e *Engine) Runner() *runner.LifecycleRunner {
	return e.runner
}

func (e *Engine) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

func (e *Engine) Health() error {
	if e.transport == nil {
		return fmt.Errorf("missing transport")
	}
	if e.registry.Draining() {
		return fmt.Errorf("draining")
	}
	return nil
}
