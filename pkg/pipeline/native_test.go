package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/harunnryd/bargein/pkg/device"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/native"
	"github.com/harunnryd/bargein/pkg/providers/mock"
)

func TestNativeStrategyFiltersAndLabelsTranscripts(t *testing.T) {
	s := newSink()
	factory := mock.NewFactory(mock.STTConfig{})
	tr := mock.NewTranscriber("recovered words here")

	opts := DefaultOptions()
	opts.MinAudioBytes = 100
	opts.Native = native.Config{RetryBackoff: time.Millisecond, InterimTimeout: time.Second}

	ctrl := NewController(opts, Deps{
		Profile:       device.Profile{Strategy: device.StrategyNative},
		NativeFactory: factory.Func(),
		Transcriber:   tr,
		Callbacks:     s.callbacks(),
		SessionID:     "sess-n",
	})
	defer ctrl.Cleanup()
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	eng := factory.Latest()
	eng.Final("thank you for watching")
	eng.Final("what is on my calendar today")

	got := awaitTranscript(t, s)
	if got.Text != "what is on my calendar today" || got.Source != SourceNative {
		t.Fatalf("unexpected native transcript %+v", got)
	}

	// Fill the rolling recorder, then exhaust retries to trigger the fallback.
	for i := 0; i < 3; i++ {
		ctrl.Feed(levelFrame(4))
	}
	for i := 0; i < 3; i++ {
		e := factory.Await(time.Second)
		if e == nil {
			t.Fatalf("expected engine %d", i)
		}
		e.Fail(errorsx.ReasonNativeNetwork, "reset")
	}

	got = awaitTranscript(t, s)
	if got.Text != "recovered words here" || got.Source != SourceRawPCM {
		t.Fatalf("unexpected fallback transcript %+v", got)
	}
	if speech, _, _ := s.counts(); speech != 0 {
		t.Fatalf("finals alone should not fire speech start, got %d", speech)
	}
}

func awaitTranscript(t *testing.T, s *sink) Transcript {
	t.Helper()
	select {
	case tr := <-s.transcriptCh:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}
	return Transcript{}
}

func TestDefaultOptionsDebounceNative(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"defaults", DefaultOptions()},
		{"zero", Options{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.opts.withDefaults()
			if got.Interrupt.Debounce != interrupt.DefaultDebounce {
				t.Fatalf("unexpected interrupt debounce %s", got.Interrupt.Debounce)
			}
			if got.Native.Debounce != interrupt.DefaultDebounce {
				t.Fatalf("unexpected native debounce %s", got.Native.Debounce)
			}
		})
	}
	if DefaultOptions().Native.TTSBoost != native.DefaultTTSBoost {
		t.Fatalf("expected default tts boost")
	}
}
