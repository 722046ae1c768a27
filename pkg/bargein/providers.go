package bargein

import (
	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/configutil"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/providers/deepgram"
	"github.com/harunnryd/bargein/pkg/providers/mock"
	"github.com/harunnryd/bargein/pkg/providers/openai"
	"github.com/harunnryd/bargein/pkg/resilience"
	"github.com/harunnryd/bargein/pkg/transports"
	mocktransport "github.com/harunnryd/bargein/pkg/transports/mock"
	"github.com/harunnryd/bargein/pkg/transports/websocket"
)

type deepgramSettings struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	Encoding       string `mapstructure:"encoding"`
	Interim        *bool  `mapstructure:"interim"`
	UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
	Endpointing    int    `mapstructure:"endpointing"`
}

var deepgramSchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "language", "encoding", "interim", "utterance_end_ms", "endpointing"},
}

func buildDeepgram(cfg Config) (stt.Factory, error) {
	settings := cfg.Vendors.Native.Settings
	if err := configutil.ValidateSettings("vendors.native.settings", settings, deepgramSchema); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	var s deepgramSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	lang := s.Language
	if lang == "" {
		lang = cfg.Audio.Language
	}
	return deepgram.NewFactory(deepgram.Config{
		APIKey:   s.APIKey,
		Model:    s.Model,
		Language: lang,
		Encoding: s.Encoding,
		Interim:  configutil.BoolValue(s.Interim, true),
		Params: deepgram.DeepgramParams{
			UtteranceEndMS: configutil.IntValue(intPtr(s.UtteranceEndMS), 1000),
			Endpointing:    configutil.IntValue(intPtr(s.Endpointing), 300),
		},
		Config: stt.Config{SampleRate: cfg.Audio.SampleRate, Language: lang},
	}), nil
}

type openAISettings struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	Language          string `mapstructure:"language"`
	Prompt            string `mapstructure:"prompt"`
	Format            string `mapstructure:"format"`
	TimeoutMS         int    `mapstructure:"timeout_ms"`
	Retries           int    `mapstructure:"retries"`
	RetryBackoffMS    int    `mapstructure:"retry_backoff_ms"`
	BreakerThreshold  int    `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int    `mapstructure:"breaker_cooldown_ms"`
}

var openAISchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{
		"base_url", "model", "language", "prompt", "format", "timeout_ms",
		"retries", "retry_backoff_ms", "breaker_threshold", "breaker_cooldown_ms",
	},
}

func buildOpenAI(cfg Config) (transcribe.Transcriber, error) {
	settings := cfg.Vendors.Transcriber.Settings
	if err := configutil.ValidateSettings("vendors.transcriber.settings", settings, openAISchema); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	var s openAISettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	lang := s.Language
	if lang == "" {
		lang = cfg.Audio.Language
	}
	inner, err := openai.New(openai.Config{
		APIKey:   s.APIKey,
		BaseURL:  s.BaseURL,
		Model:    s.Model,
		Language: lang,
		Prompt:   s.Prompt,
		Format:   s.Format,
		Timeout:  configutil.Millis(s.TimeoutMS, 0),
	})
	if err != nil {
		return nil, err
	}
	return guard(inner, cfg, s.Retries, s.RetryBackoffMS, s.BreakerThreshold, s.BreakerCooldownMS), nil
}

func guard(inner transcribe.Transcriber, cfg Config, retries, backoffMS, threshold, cooldownMS int) *transcribe.Guarded {
	return transcribe.NewGuarded(inner, transcribe.GuardOptions{
		Timeout:  cfg.TranscribeTimeout(),
		Retry:    resilience.NewRetryPolicy(retries, configutil.Millis(backoffMS, 0)),
		Breaker:  resilience.NewCircuitBreaker(threshold, configutil.Millis(cooldownMS, 0)),
		MinBytes: cfg.Audio.MinAudioBytes,
	})
}

type mockNativeSettings struct {
	Transcript        string `mapstructure:"transcript"`
	InterimTranscript string `mapstructure:"interim_transcript"`
	EmitInterim       bool   `mapstructure:"emit_interim"`
	EmitVAD           bool   `mapstructure:"emit_vad"`
	EmitUtteranceEnd  bool   `mapstructure:"emit_utterance_end"`
}

func buildMockNative(cfg Config) (stt.Factory, error) {
	var s mockNativeSettings
	if err := configutil.DecodeSettings(cfg.Vendors.Native.Settings, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	f := mock.NewFactory(mock.STTConfig{
		Transcript:        s.Transcript,
		InterimTranscript: s.InterimTranscript,
		EmitInterim:       s.EmitInterim,
		EmitVAD:           s.EmitVAD,
		EmitUtteranceEnd:  s.EmitUtteranceEnd,
	})
	return f.Func(), nil
}

func buildMockTranscriber(cfg Config) (transcribe.Transcriber, error) {
	var s struct {
		Text string `mapstructure:"text"`
	}
	if err := configutil.DecodeSettings(cfg.Vendors.Transcriber.Settings, &s); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	return guard(mock.NewTranscriber(s.Text), cfg, 1, 0, 0, 0), nil
}

var websocketSchema = configutil.Schema{
	Optional: []string{
		"server_addr", "ws_path", "health_path", "allow_any_origin", "allowed_origins",
		"sample_rate", "max_message_bytes", "send_queue", "write_timeout_ms",
	},
}

func buildWebsocketTransport(cfg Config) (transports.Transport, error) {
	settings := cfg.Transports.Settings
	if err := configutil.ValidateSettings("transports.settings", settings, websocketSchema); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	var wc websocket.Config
	if err := configutil.DecodeSettings(settings, &wc); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if wc.SampleRate <= 0 {
		wc.SampleRate = cfg.Audio.SampleRate
	}
	return websocket.New(wc), nil
}

func buildMockTransport(Config) (transports.Transport, error) {
	return mocktransport.New(), nil
}

func intPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
