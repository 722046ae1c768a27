// Package native reconciles a continuous recognition engine with the same
// transcript and interruption contract as the raw PCM path.
package native

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/adapters/tts"
	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/metrics"
	"github.com/harunnryd/bargein/pkg/recorder"
	"github.com/harunnryd/bargein/pkg/redact"
	"github.com/harunnryd/bargein/pkg/resilience"
	"github.com/harunnryd/bargein/pkg/volume"
)

const (
	DefaultQueueSize         = 64
	DefaultDedupWindow       = 5 * time.Second
	DefaultInterimTimeout    = 1500 * time.Millisecond
	DefaultMaxAttempts       = 3
	DefaultRetryBackoff      = time.Second
	DefaultSpectralThreshold = 40.0
	DefaultTTSBoost          = 15.0
	DefaultFallbackChunks    = 30
	DefaultMinAudioBytes     = 8000
	DefaultTranscribeTimeout = 15 * time.Second
)

var ErrClosed = errors.New("native adapter closed")

type Config struct {
	SampleRate int
	Language   string
	QueueSize  int

	DedupWindow time.Duration
	Dedup       DedupOptions

	InterimTimeout time.Duration

	MaxAttempts  int
	RetryBackoff time.Duration

	// SpectralThreshold plus TTSBoost is the interruption threshold used
	// while TTS plays. A zero TTSBoost means DefaultTTSBoost; a negative one
	// means no boost.
	SpectralThreshold  float64
	TTSBoost           float64
	ConfirmationFrames int
	Debounce           time.Duration
	FFTSize            int

	ChunkDuration     time.Duration
	FallbackChunks    int
	MinAudioBytes     int
	TranscribeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.TranscriptionRate
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.Dedup == (DedupOptions{}) {
		c.Dedup = DefaultDedupOptions
	}
	if c.InterimTimeout <= 0 {
		c.InterimTimeout = DefaultInterimTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.SpectralThreshold <= 0 {
		c.SpectralThreshold = DefaultSpectralThreshold
	}
	switch {
	case c.TTSBoost == 0:
		c.TTSBoost = DefaultTTSBoost
	case c.TTSBoost < 0:
		c.TTSBoost = 0
	}
	if c.ConfirmationFrames <= 0 {
		c.ConfirmationFrames = interrupt.DefaultConfirmationFrames
	}
	if c.Debounce == 0 {
		c.Debounce = interrupt.DefaultDebounce
	}
	if c.FallbackChunks <= 0 {
		c.FallbackChunks = DefaultFallbackChunks
	}
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = DefaultMinAudioBytes
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = DefaultTranscribeTimeout
	}
	return c
}

// Events are the adapter's outputs. All fields are optional and are invoked
// without any adapter lock held.
type Events struct {
	OnSpeechStart  func()
	OnFinal        func(text string)
	OnFallback     func(text string)
	OnInterruption func(ev interrupt.Event)
	OnError        func(message string)
}

type Deps struct {
	Factory     stt.Factory
	Transcriber transcribe.Transcriber
	TTS         tts.Activity
	Observer    metrics.Observer
	Logger      *slog.Logger
	Events      Events

	StreamID  string
	SessionID string
	TraceID   string
}

// Adapter drives one native engine at a time and restarts it on recoverable
// errors. Observe must be called from a single goroutine.
type Adapter struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	retry  resilience.RetryPolicy
	now    func() time.Time

	rec      *recorder.Recorder
	spectrum *volume.SpectrumAnalyzer
	detector *interrupt.Detector
	ttsWas   bool

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan frames.AudioFrame
	wg     sync.WaitGroup

	mu           sync.Mutex
	engine       stt.StreamingSTT
	gen          int
	started      bool
	closed       bool
	stopped      bool
	attempts     int
	fallbackUsed bool
	speechFired  bool
	interim      string
	interimSeq   int
	interimTimer *time.Timer
	retryTimer   *time.Timer
	lastFinal    string
	lastFinalAt  time.Time
	dropped      int
}

func New(cfg Config, deps Deps) *Adapter {
	cfg = cfg.withDefaults()
	if deps.TTS == nil {
		deps.TTS = tts.Inactive{}
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	return &Adapter{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.NewComponentLogger(base, "native").With(slog.String("session_id", deps.SessionID)),
		retry:    resilience.NewLinearPolicy(cfg.MaxAttempts, cfg.RetryBackoff),
		now:      time.Now,
		rec:      recorder.New(cfg.SampleRate, cfg.ChunkDuration),
		spectrum: volume.NewSpectrumAnalyzer(cfg.FFTSize),
		detector: interrupt.NewDetector(interrupt.Config{
			Threshold:          cfg.SpectralThreshold + cfg.TTSBoost,
			ConfirmationFrames: cfg.ConfirmationFrames,
			Debounce:           cfg.Debounce,
		}),
		queue: make(chan frames.AudioFrame, cfg.QueueSize),
	}
}

// Start creates the first engine and the audio sender. A recoverable
// connect failure is retried in the background; anything else is returned.
func (a *Adapter) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.deps.Factory == nil {
		return errorsx.New(errorsx.ReasonConfigInvalid, "native: engine factory required")
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	a.mu.Unlock()

	a.rec.Start()
	go a.sendLoop()

	if err := a.startEngine(); err != nil {
		if !errorsx.IsRecoverable(err) {
			return err
		}
		a.handleEngineError(a.currentGen(), errorsx.Reason(err), err.Error(), true)
	}
	return nil
}

// Observe handles one captured frame. While TTS is active the frame only
// feeds the spectral interruption check and is neither recorded nor sent.
func (a *Adapter) Observe(now time.Time, frame frames.AudioFrame) {
	active, _ := a.deps.TTS.Active()
	if active {
		a.ttsWas = true
		level := a.spectrum.Level(frame.Samples())
		if ev, ok := a.detector.Observe(now, level); ok {
			a.logger.Info("interruption_detected",
				slog.Float64("level", ev.Volume),
				slog.Float64("threshold", a.detector.Threshold()))
			metrics.Record(a.deps.Observer, metrics.EventInterruption, ev.Volume, a.tags())
			if fn := a.deps.Events.OnInterruption; fn != nil {
				fn(ev)
			}
		}
		return
	}
	if a.ttsWas {
		a.ttsWas = false
		a.detector.Reset()
	}

	a.rec.Write(frame.RawPayload())
	a.rec.TrimIdle(a.cfg.FallbackChunks)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.started {
		return
	}
	select {
	case a.queue <- frame:
	default:
		a.dropped++
		if a.dropped == 1 || a.dropped%100 == 0 {
			a.logger.Warn("native_queue_full", slog.Int("dropped", a.dropped))
		}
	}
}

// Close stops the engine, timers, sender and any in-flight fallback
// transcription. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.stopTimersLocked()
	eng := a.engine
	a.engine = nil
	a.gen++
	if a.started {
		close(a.queue)
	}
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if eng != nil {
		_ = eng.Close()
	}
	a.wg.Wait()
	a.rec.Close()
	a.logger.Debug("native_adapter_closed")
	return nil
}

// Attempts returns the current recoverable-error count.
func (a *Adapter) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func (a *Adapter) currentGen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

func (a *Adapter) tags() map[string]string {
	return map[string]string{
		frames.MetaSessionID: a.deps.SessionID,
		frames.MetaSource:    "native",
	}
}

func (a *Adapter) sendLoop() {
	defer a.wg.Done()
	for frame := range a.queue {
		a.mu.Lock()
		eng := a.engine
		gen := a.gen
		a.mu.Unlock()
		if eng == nil {
			continue
		}
		if err := eng.SendAudio(frame); err != nil {
			a.logger.Debug("native_send_failed", slog.String("error", err.Error()))
			a.handleEngineError(gen, errorsx.ReasonNativeCapture, err.Error(), true)
		}
	}
}

// startEngine replaces the current engine with a fresh one.
func (a *Adapter) startEngine() error {
	a.mu.Lock()
	if a.closed || a.stopped {
		a.mu.Unlock()
		return ErrClosed
	}
	old := a.engine
	a.engine = nil
	a.gen++
	gen := a.gen
	a.speechFired = false
	ctx := a.ctx
	a.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	eng, err := a.deps.Factory(stt.Config{
		StreamID:   a.deps.StreamID,
		SessionID:  a.deps.SessionID,
		TraceID:    a.deps.TraceID,
		SampleRate: a.cfg.SampleRate,
		Language:   a.cfg.Language,
	})
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		_ = eng.Close()
		return errorsx.Wrap(err, errorsx.ReasonNativeConnect)
	}

	a.mu.Lock()
	if a.closed || gen != a.gen {
		a.mu.Unlock()
		_ = eng.Close()
		return ErrClosed
	}
	a.engine = eng
	a.wg.Add(1)
	a.mu.Unlock()

	a.logger.Info("native_engine_started", slog.String("engine", eng.Name()), slog.Int("generation", gen))
	go a.consume(gen, eng)
	return nil
}

func (a *Adapter) consume(gen int, eng stt.StreamingSTT) {
	defer a.wg.Done()
	for f := range eng.Results() {
		switch v := f.(type) {
		case frames.TextFrame:
			if stt.IsFinal(v) {
				a.handleFinal(gen, v.Text(), false)
			} else {
				a.handleInterim(gen, v.Text())
			}
		case frames.ControlFrame:
			if ee, ok := stt.ErrorOf(v); ok {
				a.handleEngineError(gen, ee.Reason, ee.Message, ee.Recoverable)
				continue
			}
			switch v.Code() {
			case frames.ControlSpeechStart:
				a.fireSpeechStart(gen)
			case frames.ControlFlush:
				a.promoteInterim(gen, -1)
			}
		}
	}
}

func (a *Adapter) fireSpeechStart(gen int) {
	if active, _ := a.deps.TTS.Active(); active {
		return
	}
	a.mu.Lock()
	if gen != a.gen || a.closed || a.speechFired {
		a.mu.Unlock()
		return
	}
	a.speechFired = true
	a.mu.Unlock()

	a.logger.Debug("native_speech_start")
	metrics.Record(a.deps.Observer, metrics.EventSpeechStart, 1, a.tags())
	if fn := a.deps.Events.OnSpeechStart; fn != nil {
		fn()
	}
}

func (a *Adapter) handleInterim(gen int, text string) {
	if text == "" {
		return
	}
	a.fireSpeechStart(gen)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.closed {
		return
	}
	a.interim = text
	a.interimSeq++
	seq := a.interimSeq
	if a.interimTimer != nil {
		a.interimTimer.Stop()
	}
	a.interimTimer = time.AfterFunc(a.cfg.InterimTimeout, func() {
		a.promoteInterim(gen, seq)
	})
}

// promoteInterim surfaces the buffered interim as a final. seq -1 promotes
// whatever is buffered.
func (a *Adapter) promoteInterim(gen, seq int) {
	a.mu.Lock()
	if gen != a.gen || a.closed || a.interim == "" || (seq >= 0 && seq != a.interimSeq) {
		a.mu.Unlock()
		return
	}
	text := a.interim
	a.mu.Unlock()

	a.logger.Debug("native_interim_promoted", slog.String("text", redact.Transcript(text, 80)))
	metrics.Record(a.deps.Observer, metrics.EventNativeInterimPromote, 1, a.tags())
	a.handleFinal(gen, text, true)
}

func (a *Adapter) handleFinal(gen int, text string, promoted bool) {
	now := a.now()

	a.mu.Lock()
	if gen != a.gen || a.closed {
		a.mu.Unlock()
		return
	}
	if a.interimTimer != nil {
		a.interimTimer.Stop()
		a.interimTimer = nil
	}
	a.interim = ""
	a.interimSeq++
	a.speechFired = false
	a.fallbackUsed = false
	a.attempts = 0

	duplicate := a.lastFinal != "" && now.Sub(a.lastFinalAt) < a.cfg.DedupWindow &&
		IsNearDuplicate(a.lastFinal, text, a.cfg.Dedup)
	if !duplicate {
		a.lastFinal = text
		a.lastFinalAt = now
	}
	a.mu.Unlock()

	a.rec.Discard()

	if duplicate {
		a.logger.Debug("native_final_suppressed", slog.String("text", redact.Transcript(text, 80)))
		metrics.Record(a.deps.Observer, metrics.EventNativeDuplicate, 1, a.tags())
		return
	}
	a.logger.Info("native_final",
		slog.String("text", redact.Transcript(text, 80)),
		slog.Bool("promoted", promoted))
	metrics.Record(a.deps.Observer, metrics.EventNativeFinal, 1, a.tags())
	if fn := a.deps.Events.OnFinal; fn != nil {
		fn(text)
	}
}

func (a *Adapter) handleEngineError(gen int, reason errorsx.ReasonCode, message string, recoverable bool) {
	a.mu.Lock()
	if gen != a.gen || a.closed || a.stopped {
		a.mu.Unlock()
		return
	}

	if !recoverable {
		a.stopped = true
		a.stopTimersLocked()
		eng := a.engine
		a.engine = nil
		a.gen++
		a.mu.Unlock()

		a.logger.Error("native_engine_fatal", slog.String("reason", string(reason)), slog.String("error", message))
		if eng != nil {
			_ = eng.Close()
		}
		if fn := a.deps.Events.OnError; fn != nil {
			fn(fmt.Sprintf("speech recognition stopped: %s", message))
		}
		return
	}

	a.attempts++
	attempt := a.attempts
	// Detach the failed engine; anything it still reports is ignored.
	failed := a.engine
	a.engine = nil
	a.gen++
	nextGen := a.gen
	if failed != nil {
		defer failed.Close()
	}

	if a.retry.Exhausted(attempt) && !a.fallbackUsed {
		a.fallbackUsed = true
		a.attempts = 0
		a.mu.Unlock()

		a.logger.Warn("native_fallback",
			slog.String("reason", string(reason)),
			slog.Int("attempt", attempt))
		metrics.Record(a.deps.Observer, metrics.EventNativeFallback, float64(attempt), a.tags())
		a.fallback()
		a.restart(nextGen)
		return
	}

	delay := a.retry.Delay(attempt)
	if a.retry.Exhausted(attempt) {
		delay = a.retry.Delay(a.cfg.MaxAttempts)
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
	}
	a.retryTimer = time.AfterFunc(delay, func() { a.restart(nextGen) })
	a.mu.Unlock()

	a.logger.Warn("native_retry",
		slog.String("reason", string(reason)),
		slog.String("error", message),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
	metrics.Record(a.deps.Observer, metrics.EventNativeRetry, float64(attempt), a.tags())
}

func (a *Adapter) restart(gen int) {
	a.mu.Lock()
	if gen != a.gen || a.closed || a.stopped {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if err := a.startEngine(); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		a.handleEngineError(a.currentGen(), errorsx.Reason(err), err.Error(), errorsx.IsRecoverable(err))
	}
}

// fallback ships the rolling recording to the transcription call.
func (a *Adapter) fallback() {
	pcm := a.rec.Stop()
	if len(pcm) < a.cfg.MinAudioBytes || a.deps.Transcriber == nil {
		a.logger.Debug("native_fallback_skipped", slog.Int("bytes", len(pcm)))
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("native_fallback_panic", slog.Any("panic", r))
			}
		}()
		tctx, cancel := context.WithTimeout(ctx, a.cfg.TranscribeTimeout)
		defer cancel()

		text, err := a.deps.Transcriber.Transcribe(tctx, transcribe.Request{
			PCM:        pcm,
			SampleRate: a.cfg.SampleRate,
			Language:   a.cfg.Language,
			SessionID:  a.deps.SessionID,
		})
		if err != nil {
			a.logger.Warn("native_fallback_transcribe_failed",
				slog.String("reason", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			metrics.Record(a.deps.Observer, metrics.EventTranscribeError, 1, a.tags())
			return
		}
		if text == "" || ctx.Err() != nil {
			return
		}
		if fn := a.deps.Events.OnFallback; fn != nil {
			fn(text)
		}
	}()
}

func (a *Adapter) stopTimersLocked() {
	if a.interimTimer != nil {
		a.interimTimer.Stop()
		a.interimTimer = nil
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
	}
	a.interim = ""
}
