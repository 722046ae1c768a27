package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
)

// STTConfig scripts what a mock engine emits on its first audio frame.
type STTConfig struct {
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
	EmitVAD           bool
	EmitUtteranceEnd  bool
	// StartErr makes Start fail.
	StartErr error
	stt.Config
}

// StreamingSTT is an in-memory engine. Tests drive it through Inject and Fail.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.Frame
	mu      sync.Mutex
	started bool
	closed  bool
	emitted bool
	sent    int
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	return &StreamingSTT{cfg: cfg, out: make(chan frames.Frame, 64)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if s.cfg.StartErr != nil {
		return errorsx.Wrap(s.cfg.StartErr, errorsx.ReasonNativeConnect)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.started = false
	close(s.out)
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	s.sent++
	if s.emitted || s.cfg.Transcript == "" {
		s.mu.Unlock()
		return nil
	}
	s.emitted = true
	s.mu.Unlock()

	if s.cfg.EmitVAD {
		s.Inject(stt.NewSpeechStartFrame(s.cfg.Config))
	}
	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		s.Inject(stt.NewTranscriptFrame(s.cfg.Config, interim, false))
	}
	s.Inject(stt.NewTranscriptFrame(s.cfg.Config, s.cfg.Transcript, true))
	if s.cfg.EmitUtteranceEnd {
		s.Inject(stt.NewUtteranceEndFrame(s.cfg.Config))
	}
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

// Inject pushes a result frame as if the engine produced it.
func (s *StreamingSTT) Inject(f frames.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- f:
		return true
	default:
		return false
	}
}

func (s *StreamingSTT) Interim(text string) bool {
	return s.Inject(stt.NewTranscriptFrame(s.cfg.Config, text, false))
}

func (s *StreamingSTT) Final(text string) bool {
	return s.Inject(stt.NewTranscriptFrame(s.cfg.Config, text, true))
}

func (s *StreamingSTT) SpeechStart() bool {
	return s.Inject(stt.NewSpeechStartFrame(s.cfg.Config))
}

func (s *StreamingSTT) UtteranceEnd() bool {
	return s.Inject(stt.NewUtteranceEndFrame(s.cfg.Config))
}

// Fail emits an engine error frame.
func (s *StreamingSTT) Fail(reason errorsx.ReasonCode, message string) bool {
	return s.Inject(stt.NewErrorFrame(s.cfg.Config, reason, message))
}

func (s *StreamingSTT) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *StreamingSTT) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StreamingSTT) Config() stt.Config { return s.cfg.Config }

// Factory builds mock engines and remembers them in creation order.
type Factory struct {
	Base STTConfig
	// StartErrs is consumed one entry per created engine.
	StartErrs []error

	mu      sync.Mutex
	engines []*StreamingSTT
	created chan *StreamingSTT
}

func NewFactory(base STTConfig) *Factory {
	return &Factory{Base: base, created: make(chan *StreamingSTT, 32)}
}

func (f *Factory) New(cfg stt.Config) (stt.StreamingSTT, error) {
	c := f.Base
	c.Config = cfg
	f.mu.Lock()
	if len(f.StartErrs) > 0 {
		c.StartErr = f.StartErrs[0]
		f.StartErrs = f.StartErrs[1:]
	}
	eng := NewSTT(c)
	f.engines = append(f.engines, eng)
	f.mu.Unlock()
	select {
	case f.created <- eng:
	default:
	}
	return eng, nil
}

// Func returns the factory as an stt.Factory.
func (f *Factory) Func() stt.Factory { return f.New }

func (f *Factory) Engines() []*StreamingSTT {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*StreamingSTT(nil), f.engines...)
}

func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

// Latest returns the most recently created engine, or nil.
func (f *Factory) Latest() *StreamingSTT {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// Await waits for the next created engine.
func (f *Factory) Await(timeout time.Duration) *StreamingSTT {
	select {
	case eng := <-f.created:
		return eng
	case <-time.After(timeout):
		return nil
	}
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
