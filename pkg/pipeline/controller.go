package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/logging"
)

var ErrControllerClosed = errors.New("pipeline controller closed")

// Controller owns one pipeline: the strategy chosen from the device profile,
// the optional local capture device and the resampler in front of both.
type Controller struct {
	opts   Options
	deps   Deps
	logger *slog.Logger
	pts    *frames.PTSGen

	strategy Strategy

	mu        sync.Mutex
	capture   audio.CaptureDevice
	resampler *audio.Resampler
	started   bool
	closed    bool
}

func NewController(opts Options, deps Deps) *Controller {
	opts = opts.withDefaults()
	deps = deps.withDefaults()
	c := &Controller{
		opts:     opts,
		deps:     deps,
		logger:   logging.NewComponentLogger(deps.Logger, "pipeline").With(slog.String("session_id", deps.SessionID)),
		pts:      frames.NewPTSGen(),
		strategy: NewStrategy(opts, deps),
	}
	c.logger.Info("pipeline_strategy_selected",
		slog.String("strategy", c.strategy.Name()),
		slog.Any("profile", deps.Profile))
	return c
}

func (c *Controller) Strategy() Strategy { return c.strategy }

// Start starts the strategy. Audio arrives through Feed or a capture device
// attached with StartCapture.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.strategy.Start(ctx); err != nil {
		c.logger.Error("pipeline_start_failed",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		c.deps.Callbacks.error(err.Error())
		c.Cleanup()
		return err
	}
	return nil
}

// StartCapture acquires a local microphone and starts the pipeline on it.
// Acquisition failures are classified, reported through OnError, and leave
// the pipeline stopped.
func (c *Controller) StartCapture(ctx context.Context, actx audio.Context, dev *audio.DeviceInfo) error {
	capture, err := actx.NewCapture(dev, audio.CaptureConfig{
		SampleRate:   uint32(c.opts.CaptureRate),
		Channels:     1,
		FrameSamples: uint32(c.opts.FrameSamples),
		Constraints:  c.opts.Constraints,
	})
	if err != nil {
		return c.acquisitionFailed(err)
	}

	resampler, err := audio.NewResampler(int(capture.SampleRate()), c.opts.SampleRate)
	if err != nil {
		capture.Close()
		c.deps.Callbacks.error(err.Error())
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		capture.Close()
		return ErrControllerClosed
	}
	c.capture = capture
	c.resampler = resampler
	c.mu.Unlock()

	capture.SetCallback(func(data []byte, frameCount uint32) {
		c.Feed(frames.NewAudioFrame(c.deps.StreamID, 0, data, int(capture.SampleRate()), 1, nil))
	})

	if err := c.Start(ctx); err != nil {
		return err
	}
	if err := capture.Start(); err != nil {
		c.Cleanup()
		return c.acquisitionFailed(err)
	}
	c.logger.Info("capture_started",
		slog.String("device", capture.DeviceName()),
		slog.Int("capture_rate", int(capture.SampleRate())),
		slog.Int("sample_rate", c.opts.SampleRate))
	return nil
}

func (c *Controller) acquisitionFailed(err error) error {
	err = audio.Classify(err)
	var acq *audio.AcquisitionError
	if errors.As(err, &acq) {
		c.logger.Error("mic_acquisition_failed",
			slog.String("reason", string(acq.Reason())),
			slog.String("error", acq.Error()))
		c.deps.Callbacks.error(acq.Message())
		return errorsx.Wrap(err, acq.Reason())
	}
	c.deps.Callbacks.error(err.Error())
	return err
}

// Fail reports a client-side microphone failure and stops the pipeline.
func (c *Controller) Fail(acq *audio.AcquisitionError) {
	if acq == nil {
		return
	}
	c.logger.Error("mic_acquisition_failed",
		slog.String("reason", string(acq.Reason())),
		slog.String("error", acq.Error()))
	c.deps.Callbacks.error(acq.Message())
	c.Cleanup()
}

// Feed normalizes a frame to mono PCM16 at the pipeline rate and hands it
// to the strategy. Frames must arrive in capture order.
func (c *Controller) Feed(frame frames.AudioFrame) {
	c.mu.Lock()
	if c.closed || !c.started {
		c.mu.Unlock()
		return
	}
	resampler := c.resampler
	if frame.Rate() > 0 && frame.Rate() != c.opts.SampleRate &&
		(resampler == nil || resampler.InputRate() != frame.Rate()) {
		r, err := audio.NewResampler(frame.Rate(), c.opts.SampleRate)
		if err != nil {
			c.mu.Unlock()
			c.logger.Warn("resampler_init_failed", slog.String("error", err.Error()))
			return
		}
		c.resampler = r
		resampler = r
	}
	c.mu.Unlock()

	samples := frame.Samples()
	if resampler != nil && frame.Rate() != c.opts.SampleRate {
		out, err := resampler.Process(samples)
		if err != nil {
			c.logger.Warn("resample_failed", slog.String("error", err.Error()))
			return
		}
		samples = out
	}
	if len(samples) == 0 {
		return
	}
	c.strategy.HandleAudio(frames.NewAudioFrame(
		c.deps.StreamID,
		c.pts.Next(c.deps.StreamID),
		audio.SamplesToBytes(samples),
		c.opts.SampleRate,
		1,
		frame.Meta(),
	))
}

// Cleanup releases the capture device and tears down the strategy. It is
// synchronous and idempotent.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	capture := c.capture
	c.capture = nil
	c.resampler = nil
	c.mu.Unlock()

	if capture != nil {
		capture.ClearCallback()
		capture.Stop()
		capture.Close()
	}
	if c.strategy != nil {
		if err := c.strategy.Close(); err != nil {
			c.logger.Warn("strategy_close_failed", slog.String("error", err.Error()))
		}
	}
	c.logger.Info("pipeline_cleaned_up")
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
