package configutil

import (
	"strings"
	"testing"
	"time"
)

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key", "model"}, Optional: []string{"language"}}

	err := ValidateSettings("vendors.native.settings", map[string]any{"API-Key": "k", "model": "nova-2"}, schema)
	if err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}

	err = ValidateSettings("vendors.native.settings", map[string]any{"api_key": " ", "colour": "red"}, schema)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"vendors.native.settings:", "missing: api_key, model", "unknown: colour"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestDecodeSettings(t *testing.T) {
	var out struct {
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout"`
		Interim *bool         `mapstructure:"interim"`
		Rate    int           `mapstructure:"sample_rate"`
	}
	in := map[string]any{"apiKey": "secret", "timeout": "1500ms", "interim": "false", "sample-rate": "16000"}
	if err := DecodeSettings(in, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "secret" || out.Timeout != 1500*time.Millisecond || out.Rate != 16000 {
		t.Fatalf("unexpected decode result %+v", out)
	}
	if BoolValue(out.Interim, true) {
		t.Fatalf("expected interim false")
	}
}

func TestValueHelpers(t *testing.T) {
	if IntValue(nil, 3) != 3 || FloatValue(nil, 1.5) != 1.5 {
		t.Fatalf("expected fallbacks")
	}
	if Millis(0, time.Second) != time.Second || Millis(250, time.Second) != 250*time.Millisecond {
		t.Fatalf("unexpected millis conversion")
	}
	if err := RequireString("", "vendors.transcriber.settings.api_key"); err == nil {
		t.Fatalf("expected required error")
	}
}
