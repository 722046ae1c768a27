// Package audio acquires microphone PCM and converts it for the detection
// pipelines.
package audio

const (
	// TranscriptionRate is the sample rate segments are recorded and encoded at.
	TranscriptionRate = 16000
	// DefaultFrameSamples is the capture callback cadence.
	DefaultFrameSamples = 4096
	WAVHeaderSize       = 44
)

// DataCallback receives little-endian PCM16 frames from the capture thread.
// It must not block.
type DataCallback func(data []byte, frameCount uint32)

// Constraints are requested processing features. Backends that cannot apply
// one report it through Unsupported.
type Constraints struct {
	EchoCancellation bool `mapstructure:"echo_cancellation"`
	NoiseSuppression bool `mapstructure:"noise_suppression"`
	AutoGainControl  bool `mapstructure:"auto_gain_control"`
}

// DefaultConstraints enables every processing feature.
func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// Unsupported lists the requested constraints missing from supported.
func (c Constraints) Unsupported(supported Constraints) []string {
	var out []string
	if c.EchoCancellation && !supported.EchoCancellation {
		out = append(out, "echo_cancellation")
	}
	if c.NoiseSuppression && !supported.NoiseSuppression {
		out = append(out, "noise_suppression")
	}
	if c.AutoGainControl && !supported.AutoGainControl {
		out = append(out, "auto_gain_control")
	}
	return out
}

type CaptureConfig struct {
	// SampleRate is a hint; the device may deliver a different rate.
	SampleRate   uint32
	Channels     uint32
	FrameSamples uint32
	Constraints  Constraints
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameSamples == 0 {
		c.FrameSamples = DefaultFrameSamples
	}
	return c
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	SampleRate() uint32
	DeviceName() string
}
