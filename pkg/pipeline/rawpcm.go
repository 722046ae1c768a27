package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/metrics"
	"github.com/harunnryd/bargein/pkg/postfilter"
	"github.com/harunnryd/bargein/pkg/recorder"
	"github.com/harunnryd/bargein/pkg/redact"
	"github.com/harunnryd/bargein/pkg/segment"
	"github.com/harunnryd/bargein/pkg/volume"
)

// RawPCM segments speech by volume and sends closed segments to the
// transcription call.
type RawPCM struct {
	opts   Options
	deps   Deps
	logger *slog.Logger

	analyzer  *volume.Analyzer
	segmenter *segment.Segmenter
	rec       *recorder.Recorder
	detector  *interrupt.Detector
	filter    *postfilter.Filter
	ttsWas    bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewRawPCM(opts Options, deps Deps) *RawPCM {
	opts = opts.withDefaults()
	deps = deps.withDefaults()

	icfg := opts.Interrupt
	if icfg.Threshold <= 0 {
		icfg.Threshold = interrupt.DefaultThreshold
	}
	if deps.Profile.HasEchoRisk {
		icfg.Threshold += opts.EchoRiskBoost
	}

	return &RawPCM{
		opts:      opts,
		deps:      deps,
		logger:    logging.NewComponentLogger(deps.Logger, "raw_pcm").With(slog.String("session_id", deps.SessionID)),
		analyzer:  volume.NewAnalyzer(opts.HistorySize),
		segmenter: segment.New(opts.Segment),
		rec:       recorder.New(opts.SampleRate, opts.ChunkDuration),
		detector:  interrupt.NewDetector(icfg),
		filter:    postfilter.New(opts.Filter),
	}
}

func (p *RawPCM) Name() string { return string(SourceRawPCM) }

// State exposes the segmentation state.
func (p *RawPCM) State() segment.State { return p.segmenter.State() }

// InterruptThreshold is the effective TTS interruption threshold.
func (p *RawPCM) InterruptThreshold() float64 { return p.detector.Threshold() }

func (p *RawPCM) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("pipeline closed")
	}
	if p.ctx == nil {
		p.ctx, p.cancel = context.WithCancel(ctx)
	}
	p.mu.Unlock()

	if err := p.segmenter.Start(); err != nil {
		return err
	}
	p.rec.Start()
	p.logger.Info("raw_pcm_started",
		slog.Float64("speech_threshold", p.segmenter.Config().SpeechThreshold),
		slog.Float64("interrupt_threshold", p.detector.Threshold()))
	return nil
}

// HandleAudio runs one frame through the analyzer and, depending on TTS
// activity, through segmentation or the interruption detector.
func (p *RawPCM) HandleAudio(frame frames.AudioFrame) {
	p.mu.Lock()
	closed := p.closed || p.ctx == nil
	p.mu.Unlock()
	if closed {
		return
	}

	now := p.deps.Clock()
	reading := p.analyzer.Push(frame.Samples())
	metrics.Record(p.deps.Observer, metrics.EventVolume, reading.Smoothed, p.deps.tags(""))

	active, _ := p.deps.TTS.Active()
	if active {
		p.handleTTSActive(now, reading)
		return
	}
	if p.ttsWas {
		p.ttsWas = false
		p.detector.Reset()
	}

	p.rec.Write(frame.RawPayload())
	ev := p.segmenter.Observe(now, reading.Smoothed, false)
	switch ev.Kind {
	case segment.EventSpeechStarted:
		p.logger.Info("speech_start", slog.String("segment_id", ev.Segment.ID), slog.Float64("volume", reading.Smoothed))
		metrics.Record(p.deps.Observer, metrics.EventSpeechStart, reading.Smoothed, p.deps.tags(ev.Segment.ID))
		p.deps.Callbacks.speechStart()
	case segment.EventSegmentDiscarded:
		p.logger.Debug("segment_discarded",
			slog.String("segment_id", ev.Segment.ID),
			slog.Duration("duration", ev.Segment.Duration()))
		metrics.Record(p.deps.Observer, metrics.EventSegmentDiscarded, float64(ev.Segment.Duration().Milliseconds()), p.deps.tags(ev.Segment.ID))
		p.rec.TrimIdle(p.opts.PreRollChunks)
	case segment.EventSegmentClosed:
		p.closeSegment(ev.Segment)
	default:
		if p.segmenter.State() == segment.StateListening {
			p.rec.TrimIdle(p.opts.PreRollChunks)
		}
	}
}

func (p *RawPCM) handleTTSActive(now time.Time, reading volume.Reading) {
	if !p.ttsWas {
		p.ttsWas = true
		// Pre-roll captured before playback must not leak into the next segment.
		p.rec.Discard()
	}
	ev := p.segmenter.Observe(now, reading.Smoothed, true)
	if ev.Kind == segment.EventSegmentAbandoned {
		p.rec.Discard()
		p.logger.Info("segment_abandoned", slog.String("segment_id", ev.Segment.ID))
		metrics.Record(p.deps.Observer, metrics.EventSegmentAbandoned, 1, p.deps.tags(ev.Segment.ID))
	}

	iev, fired := p.detector.Observe(now, reading.Smoothed)
	if !fired {
		return
	}
	p.logger.Info("interruption_detected",
		slog.Float64("volume", iev.Volume),
		slog.Float64("threshold", p.detector.Threshold()))
	metrics.Record(p.deps.Observer, metrics.EventInterruption, iev.Volume, p.deps.tags(""))
	p.deps.Callbacks.interruption(iev)
}

func (p *RawPCM) closeSegment(seg segment.Segment) {
	pcm := p.rec.Stop()
	seg.Audio = pcm
	p.logger.Info("segment_closed",
		slog.String("segment_id", seg.ID),
		slog.Duration("duration", seg.Duration()),
		slog.Int("bytes", len(pcm)))
	metrics.Record(p.deps.Observer, metrics.EventSegmentClosed, float64(seg.Duration().Milliseconds()), p.deps.tags(seg.ID))

	if len(pcm) < p.opts.MinAudioBytes || p.deps.Transcriber == nil {
		p.logger.Debug("segment_too_small", slog.String("segment_id", seg.ID), slog.Int("bytes", len(pcm)))
		p.settle()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	p.wg.Add(1)
	p.mu.Unlock()

	go p.transcribe(ctx, seg)
}

func (p *RawPCM) transcribe(ctx context.Context, seg segment.Segment) {
	defer p.wg.Done()
	defer p.settle()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("transcribe_panic", slog.String("segment_id", seg.ID), slog.Any("panic", r))
		}
	}()

	if p.deps.Artifacts != nil {
		if path, err := p.deps.Artifacts.Write(p.deps.SessionID, seg.ID, seg.Audio, p.opts.SampleRate); err != nil {
			p.logger.Warn("artifact_write_failed", slog.String("segment_id", seg.ID), slog.String("error", err.Error()))
		} else {
			p.logger.Debug("artifact_written", slog.String("segment_id", seg.ID), slog.String("path", path))
		}
	}

	tctx, cancel := context.WithTimeout(ctx, p.opts.TranscribeTimeout)
	defer cancel()
	text, err := p.deps.Transcriber.Transcribe(tctx, transcribe.Request{
		PCM:        seg.Audio,
		SampleRate: p.opts.SampleRate,
		Language:   p.opts.Language,
		SessionID:  p.deps.SessionID,
		SegmentID:  seg.ID,
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Warn("transcribe_failed",
			slog.String("segment_id", seg.ID),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		metrics.Record(p.deps.Observer, metrics.EventTranscribeError, 1, p.deps.tags(seg.ID))
		return
	}
	emitTranscript(p.logger, p.deps, p.filter, seg.ID, text, SourceRawPCM)
}

func (p *RawPCM) settle() {
	if err := p.segmenter.Settle(); err != nil {
		p.logger.Debug("settle_skipped", slog.String("error", err.Error()))
	}
}

// Close tears everything down and cancels in-flight transcription. It is
// safe to call more than once.
func (p *RawPCM) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.segmenter.Stop()
	p.rec.Close()
	p.analyzer.Reset()
	p.detector.Reset()
	p.wg.Wait()
	p.logger.Debug("raw_pcm_closed")
	return nil
}

// emitTranscript runs the post-filter and fires the transcript callback.
func emitTranscript(logger *slog.Logger, deps Deps, filter *postfilter.Filter, segmentID, text string, source Source) {
	tags := deps.tags(segmentID)
	tags[frames.MetaSource] = string(source)

	cleaned, ok := filter.Apply(text)
	if !ok {
		if text != "" {
			logger.Info("transcript_filtered",
				slog.String("reason", filter.Reason(text)),
				slog.String("text", redact.Transcript(text, 80)))
			metrics.Record(deps.Observer, metrics.EventTranscriptFiltered, 1, tags)
		}
		return
	}
	logger.Info("transcript_emitted",
		slog.String("source", string(source)),
		slog.String("text", redact.Transcript(cleaned, 80)))
	metrics.Record(deps.Observer, metrics.EventTranscriptEmitted, float64(len(cleaned)), tags)
	deps.Callbacks.transcript(Transcript{Text: cleaned, Source: source})
}
