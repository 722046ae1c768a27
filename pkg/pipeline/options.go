package pipeline

import (
	"time"

	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/native"
	"github.com/harunnryd/bargein/pkg/postfilter"
	"github.com/harunnryd/bargein/pkg/recorder"
	"github.com/harunnryd/bargein/pkg/segment"
	"github.com/harunnryd/bargein/pkg/volume"
)

const (
	DefaultMinAudioBytes     = 8000
	DefaultPreRollChunks     = 1
	DefaultEchoRiskBoost     = 1.0
	DefaultTranscribeTimeout = 15 * time.Second
)

// Options holds every tunable of one pipeline.
type Options struct {
	// SampleRate is the rate strategies operate on and transcription receives.
	SampleRate int
	// CaptureRate is the rate requested from local capture devices.
	CaptureRate  int
	FrameSamples int
	Constraints  audio.Constraints
	Language     string

	ChunkDuration time.Duration
	PreRollChunks int
	MinAudioBytes int

	HistorySize   int
	Segment       segment.Config
	Interrupt     interrupt.Config
	EchoRiskBoost float64

	Native native.Config
	Filter postfilter.Config

	TranscribeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		SampleRate:    audio.TranscriptionRate,
		CaptureRate:   48000,
		FrameSamples:  audio.DefaultFrameSamples,
		Constraints:   audio.DefaultConstraints(),
		ChunkDuration: recorder.DefaultChunk,
		PreRollChunks: DefaultPreRollChunks,
		MinAudioBytes: DefaultMinAudioBytes,
		HistorySize:   volume.DefaultHistory,
		Segment: segment.Config{
			SpeechThreshold:    segment.DefaultSpeechThreshold,
			ConfirmationFrames: segment.DefaultConfirmationFrames,
			SilenceDuration:    segment.DefaultSilenceDuration,
			MinSpeechDuration:  segment.DefaultMinSpeechDuration,
		},
		Interrupt: interrupt.Config{
			Threshold:          interrupt.DefaultThreshold,
			ConfirmationFrames: interrupt.DefaultConfirmationFrames,
			Debounce:           interrupt.DefaultDebounce,
		},
		Native: native.Config{
			SpectralThreshold:  native.DefaultSpectralThreshold,
			TTSBoost:           native.DefaultTTSBoost,
			ConfirmationFrames: interrupt.DefaultConfirmationFrames,
			Debounce:           interrupt.DefaultDebounce,
		},
		EchoRiskBoost:     DefaultEchoRiskBoost,
		TranscribeTimeout: DefaultTranscribeTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SampleRate <= 0 {
		o.SampleRate = d.SampleRate
	}
	if o.CaptureRate <= 0 {
		o.CaptureRate = d.CaptureRate
	}
	if o.FrameSamples <= 0 {
		o.FrameSamples = d.FrameSamples
	}
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = d.ChunkDuration
	}
	if o.PreRollChunks < 0 {
		o.PreRollChunks = 0
	}
	if o.MinAudioBytes <= 0 {
		o.MinAudioBytes = d.MinAudioBytes
	}
	if o.HistorySize <= 0 {
		o.HistorySize = d.HistorySize
	}
	if o.EchoRiskBoost < 0 {
		o.EchoRiskBoost = 0
	}
	if o.TranscribeTimeout <= 0 {
		o.TranscribeTimeout = d.TranscribeTimeout
	}
	if o.Native.SampleRate <= 0 {
		o.Native.SampleRate = o.SampleRate
	}
	if o.Native.Language == "" {
		o.Native.Language = o.Language
	}
	if o.Native.ChunkDuration <= 0 {
		o.Native.ChunkDuration = o.ChunkDuration
	}
	if o.Native.MinAudioBytes <= 0 {
		o.Native.MinAudioBytes = o.MinAudioBytes
	}
	if o.Native.TranscribeTimeout <= 0 {
		o.Native.TranscribeTimeout = o.TranscribeTimeout
	}
	if o.Interrupt.Debounce == 0 {
		o.Interrupt.Debounce = d.Interrupt.Debounce
	}
	if o.Native.Debounce == 0 {
		o.Native.Debounce = o.Interrupt.Debounce
	}
	return o
}
