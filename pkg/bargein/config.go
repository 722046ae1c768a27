package bargein

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/codec"
	"github.com/harunnryd/bargein/pkg/configutil"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/logging"
	"github.com/harunnryd/bargein/pkg/native"
	"github.com/harunnryd/bargein/pkg/pipeline"
	"github.com/harunnryd/bargein/pkg/postfilter"
	"github.com/harunnryd/bargein/pkg/recorder"
	"github.com/harunnryd/bargein/pkg/segment"
	"github.com/harunnryd/bargein/pkg/volume"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Audio         AudioConfig         `mapstructure:"audio"`
	VAD           VADConfig           `mapstructure:"vad"`
	Interrupt     InterruptConfig     `mapstructure:"interrupt"`
	Native        NativeConfig        `mapstructure:"native"`
	Filter        postfilter.Config   `mapstructure:"filter"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	Native      VendorConfig `mapstructure:"native"`
	Transcriber VendorConfig `mapstructure:"transcriber"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type AudioConfig struct {
	SampleRate          int               `mapstructure:"sample_rate"`
	CaptureRate         int               `mapstructure:"capture_rate"`
	FrameSamples        int               `mapstructure:"frame_samples"`
	Language            string            `mapstructure:"language"`
	ChunkMS             int               `mapstructure:"chunk_ms"`
	PreRollChunks       int               `mapstructure:"pre_roll_chunks"`
	MinAudioBytes       int               `mapstructure:"min_audio_bytes"`
	TranscribeTimeoutMS int               `mapstructure:"transcribe_timeout_ms"`
	Constraints         audio.Constraints `mapstructure:"constraints"`
}

type VADConfig struct {
	SpeechThreshold    float64 `mapstructure:"speech_threshold"`
	ConfirmationFrames int     `mapstructure:"confirmation_frames"`
	SilenceMS          int     `mapstructure:"silence_ms"`
	MinSpeechMS        int     `mapstructure:"min_speech_ms"`
	HistorySize        int     `mapstructure:"history_size"`
}

type InterruptConfig struct {
	Threshold          float64 `mapstructure:"threshold"`
	ConfirmationFrames int     `mapstructure:"confirmation_frames"`
	DebounceMS         int     `mapstructure:"debounce_ms"`
	EchoRiskBoost      float64 `mapstructure:"echo_risk_boost"`
}

type NativeConfig struct {
	QueueSize         int     `mapstructure:"queue_size"`
	DedupWindowMS     int     `mapstructure:"dedup_window_ms"`
	InterimTimeoutMS  int     `mapstructure:"interim_timeout_ms"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	RetryBackoffMS    int     `mapstructure:"retry_backoff_ms"`
	SpectralThreshold float64 `mapstructure:"spectral_threshold"`
	TTSBoost          float64 `mapstructure:"tts_boost"`
	FFTSize           int     `mapstructure:"fft_size"`
	FallbackChunks    int     `mapstructure:"fallback_chunks"`
	Dedup             struct {
		MaxSuffixChars int     `mapstructure:"max_suffix_chars"`
		MaxLengthDelta float64 `mapstructure:"max_length_delta"`
		MinWordOverlap float64 `mapstructure:"min_word_overlap"`
	} `mapstructure:"dedup"`
}

type ObservabilityConfig struct {
	ArtifactsDir   string `mapstructure:"artifacts_dir"`
	RecordAudio    bool   `mapstructure:"record_audio"`
	ArtifactFormat string `mapstructure:"artifact_format"`
	RetentionDays  int    `mapstructure:"retention_days"`
	// VolumeSampleRate is the fraction of volume readings kept by observers.
	VolumeSampleRate float64 `mapstructure:"volume_sample_rate"`
	MetricsFile      string  `mapstructure:"metrics_file"`
	// ClientDebug forwards pipeline log lines to connected clients.
	ClientDebug bool `mapstructure:"client_debug"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("audio.sample_rate", audio.TranscriptionRate)
	v.SetDefault("audio.capture_rate", 48000)
	v.SetDefault("audio.frame_samples", audio.DefaultFrameSamples)
	v.SetDefault("audio.language", "en")
	v.SetDefault("audio.chunk_ms", recorder.DefaultChunk.Milliseconds())
	v.SetDefault("audio.pre_roll_chunks", pipeline.DefaultPreRollChunks)
	v.SetDefault("audio.min_audio_bytes", pipeline.DefaultMinAudioBytes)
	v.SetDefault("audio.transcribe_timeout_ms", pipeline.DefaultTranscribeTimeout.Milliseconds())
	v.SetDefault("audio.constraints.echo_cancellation", true)
	v.SetDefault("audio.constraints.noise_suppression", true)
	v.SetDefault("audio.constraints.auto_gain_control", true)
	v.SetDefault("vad.speech_threshold", segment.DefaultSpeechThreshold)
	v.SetDefault("vad.confirmation_frames", segment.DefaultConfirmationFrames)
	v.SetDefault("vad.silence_ms", segment.DefaultSilenceDuration.Milliseconds())
	v.SetDefault("vad.min_speech_ms", segment.DefaultMinSpeechDuration.Milliseconds())
	v.SetDefault("vad.history_size", volume.DefaultHistory)
	v.SetDefault("interrupt.threshold", interrupt.DefaultThreshold)
	v.SetDefault("interrupt.confirmation_frames", interrupt.DefaultConfirmationFrames)
	v.SetDefault("interrupt.debounce_ms", interrupt.DefaultDebounce.Milliseconds())
	v.SetDefault("interrupt.echo_risk_boost", pipeline.DefaultEchoRiskBoost)
	v.SetDefault("native.queue_size", native.DefaultQueueSize)
	v.SetDefault("native.dedup_window_ms", native.DefaultDedupWindow.Milliseconds())
	v.SetDefault("native.interim_timeout_ms", native.DefaultInterimTimeout.Milliseconds())
	v.SetDefault("native.max_attempts", native.DefaultMaxAttempts)
	v.SetDefault("native.retry_backoff_ms", native.DefaultRetryBackoff.Milliseconds())
	v.SetDefault("native.spectral_threshold", native.DefaultSpectralThreshold)
	v.SetDefault("native.tts_boost", native.DefaultTTSBoost)
	v.SetDefault("native.fft_size", volume.DefaultFFTSize)
	v.SetDefault("native.fallback_chunks", native.DefaultFallbackChunks)
	v.SetDefault("native.dedup.max_suffix_chars", native.DefaultDedupOptions.MaxSuffixChars)
	v.SetDefault("native.dedup.max_length_delta", native.DefaultDedupOptions.MaxLengthDelta)
	v.SetDefault("native.dedup.min_word_overlap", native.DefaultDedupOptions.MinWordOverlap)
	v.SetDefault("vendors.transcriber.provider", "openai")
	v.SetDefault("transports.provider", "websocket")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.record_audio", false)
	v.SetDefault("observability.artifact_format", "flac")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.volume_sample_rate", 0.1)
	v.SetDefault("observability.metrics_file", "")
	v.SetDefault("observability.client_debug", false)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.Transcriber.Provider) == "" {
		return fmt.Errorf("vendors.transcriber.provider is required")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q is not one of text, json", c.LogFormat)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.VAD.SpeechThreshold <= 0 || c.VAD.SpeechThreshold > 100 {
		return fmt.Errorf("vad.speech_threshold must be in (0, 100]")
	}
	if c.Interrupt.Threshold < c.VAD.SpeechThreshold {
		return fmt.Errorf("interrupt.threshold (%v) must not be below vad.speech_threshold (%v)",
			c.Interrupt.Threshold, c.VAD.SpeechThreshold)
	}
	if c.VAD.SilenceMS <= 0 {
		return fmt.Errorf("vad.silence_ms must be positive")
	}
	if c.Native.MaxAttempts < 0 {
		return fmt.Errorf("native.max_attempts must not be negative")
	}
	if c.Observability.RecordAudio && strings.TrimSpace(c.Observability.ArtifactsDir) == "" {
		return fmt.Errorf("observability.artifacts_dir is required when record_audio is set")
	}
	if _, err := codec.New(c.Observability.ArtifactFormat); err != nil {
		return fmt.Errorf("observability.artifact_format: %w", err)
	}
	return nil
}

// PipelineOptions converts the tuning sections into pipeline options.
func (c Config) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.SampleRate = c.Audio.SampleRate
	opts.CaptureRate = c.Audio.CaptureRate
	opts.FrameSamples = c.Audio.FrameSamples
	opts.Constraints = c.Audio.Constraints
	opts.Language = c.Audio.Language
	opts.ChunkDuration = configutil.Millis(c.Audio.ChunkMS, recorder.DefaultChunk)
	opts.PreRollChunks = c.Audio.PreRollChunks
	opts.MinAudioBytes = c.Audio.MinAudioBytes
	opts.TranscribeTimeout = configutil.Millis(c.Audio.TranscribeTimeoutMS, pipeline.DefaultTranscribeTimeout)
	opts.HistorySize = c.VAD.HistorySize
	opts.Segment = segment.Config{
		SpeechThreshold:    c.VAD.SpeechThreshold,
		ConfirmationFrames: c.VAD.ConfirmationFrames,
		SilenceDuration:    configutil.Millis(c.VAD.SilenceMS, segment.DefaultSilenceDuration),
		MinSpeechDuration:  configutil.Millis(c.VAD.MinSpeechMS, segment.DefaultMinSpeechDuration),
	}
	opts.Interrupt = interrupt.Config{
		Threshold:          c.Interrupt.Threshold,
		ConfirmationFrames: c.Interrupt.ConfirmationFrames,
		Debounce:           configutil.Millis(c.Interrupt.DebounceMS, interrupt.DefaultDebounce),
	}
	opts.EchoRiskBoost = c.Interrupt.EchoRiskBoost
	opts.Native = native.Config{
		QueueSize:      c.Native.QueueSize,
		DedupWindow:    configutil.Millis(c.Native.DedupWindowMS, native.DefaultDedupWindow),
		InterimTimeout: configutil.Millis(c.Native.InterimTimeoutMS, native.DefaultInterimTimeout),
		Dedup: native.DedupOptions{
			MaxSuffixChars: c.Native.Dedup.MaxSuffixChars,
			MaxLengthDelta: c.Native.Dedup.MaxLengthDelta,
			MinWordOverlap: c.Native.Dedup.MinWordOverlap,
		},
		MaxAttempts:        c.Native.MaxAttempts,
		RetryBackoff:       configutil.Millis(c.Native.RetryBackoffMS, native.DefaultRetryBackoff),
		SpectralThreshold:  c.Native.SpectralThreshold,
		TTSBoost:           c.Native.TTSBoost,
		ConfirmationFrames: c.Interrupt.ConfirmationFrames,
		Debounce:           configutil.Millis(c.Interrupt.DebounceMS, interrupt.DefaultDebounce),
		FFTSize:            c.Native.FFTSize,
		FallbackChunks:     c.Native.FallbackChunks,
	}
	opts.Filter = c.Filter
	return opts
}

// TranscribeTimeout is the per-call timeout handed to guarded transcribers.
func (c Config) TranscribeTimeout() time.Duration {
	return configutil.Millis(c.Audio.TranscribeTimeoutMS, pipeline.DefaultTranscribeTimeout)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.Native.Settings = expandSettings(cfg.Vendors.Native.Settings)
	cfg.Vendors.Transcriber.Settings = expandSettings(cfg.Vendors.Transcriber.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
