package audio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/bargein/pkg/errorsx"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{errors.New("Access denied by user"), KindPermissionDenied},
		{errors.New("device does not exist"), KindNoDevice},
		{errors.New("Device or resource busy"), KindDeviceBusy},
		{errors.New("something odd"), KindUnknown},
	}
	for _, tc := range cases {
		var acq *AcquisitionError
		if !errors.As(Classify(tc.err), &acq) {
			t.Fatalf("expected AcquisitionError for %v", tc.err)
		}
		if acq.Kind != tc.kind {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.kind, acq.Kind)
		}
		if !errors.Is(acq, tc.err) {
			t.Fatalf("expected wrapped error to unwrap")
		}
	}
	if Classify(nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestClassifyBrowser(t *testing.T) {
	cases := map[string]Kind{
		"NotAllowedError":  KindPermissionDenied,
		"NotFoundError":    KindNoDevice,
		"NotReadableError": KindDeviceBusy,
		"SecurityError":    KindInsecureContext,
		"WeirdError":       KindUnknown,
	}
	for name, kind := range cases {
		err := ClassifyBrowser(name, "")
		if err.Kind != kind {
			t.Fatalf("%s: expected %s, got %s", name, kind, err.Kind)
		}
		if err.Message() == "" {
			t.Fatalf("%s: expected user message", name)
		}
	}
	if got := ClassifyBrowser("NotAllowedError", "").Reason(); got != errorsx.ReasonMicPermissionDenied {
		t.Fatalf("unexpected reason %s", got)
	}
}

func TestConstraintsUnsupported(t *testing.T) {
	missing := DefaultConstraints().Unsupported(Constraints{NoiseSuppression: true})
	if len(missing) != 2 || missing[0] != "echo_cancellation" || missing[1] != "auto_gain_control" {
		t.Fatalf("unexpected missing list %v", missing)
	}
}

func TestPCMHelpers(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out := BytesToSamples(SamplesToBytes(in))
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
	if got := Downmix([]int16{100, 300, -50, 50}, 2); len(got) != 2 || got[0] != 200 || got[1] != 0 {
		t.Fatalf("unexpected downmix %v", got)
	}
	if d := DurationOf(32000, 16000); d != time.Second {
		t.Fatalf("expected 1s, got %s", d)
	}
	if b := BytesFor(250*time.Millisecond, 16000); b != 8000 {
		t.Fatalf("expected 8000 bytes, got %d", b)
	}
	if n := len(Tone(440, 0.5, 100*time.Millisecond, 16000)); n != 1600 {
		t.Fatalf("expected 1600 samples, got %d", n)
	}
}

func TestFakeCaptureDeliversFrames(t *testing.T) {
	pcm := SamplesToBytes(make([]int16, 10000))
	ctx := NewFakeContext(pcm, 16000, false)
	dev, err := ctx.NewCapture(nil, CaptureConfig{FrameSamples: 4096})
	if err != nil {
		t.Fatalf("new capture: %v", err)
	}
	var mu sync.Mutex
	var frames []uint32
	dev.SetCallback(func(_ []byte, n uint32) {
		mu.Lock()
		frames = append(frames, n)
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-dev.(*FakeCapture).AudioDone()
	dev.Close()
	if len(frames) != 3 || frames[0] != 4096 || frames[2] != 10000-8192 {
		t.Fatalf("unexpected frames %v", frames)
	}
	if dev.SampleRate() != 16000 {
		t.Fatalf("unexpected rate %d", dev.SampleRate())
	}
}

func TestFakeContextError(t *testing.T) {
	ctx := NewFakeContext(nil, 0, false)
	ctx.Err = errors.New("permission denied")
	_, err := ctx.NewCapture(nil, CaptureConfig{})
	var acq *AcquisitionError
	if !errors.As(err, &acq) || acq.Kind != KindPermissionDenied {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestResamplerPassthrough(t *testing.T) {
	r, err := NewResampler(16000, 16000)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	in := []int16{1, 2, 3}
	out, err := r.Process(in)
	if err != nil || len(out) != 3 || out[2] != 3 {
		t.Fatalf("expected passthrough, got %v %v", out, err)
	}
}

func TestResamplerDownsamples(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tone := Tone(440, 0.5, time.Second, 48000)
	var total int
	for i := 0; i < len(tone); i += 4096 {
		end := min(i+4096, len(tone))
		out, err := r.Process(tone[i:end])
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		total += len(out)
	}
	if total < 12000 || total > 17000 {
		t.Fatalf("expected roughly 16000 samples, got %d", total)
	}
}
