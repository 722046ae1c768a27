package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/bargein/pkg/adapters/tts"
	"github.com/harunnryd/bargein/pkg/audio"
	"github.com/harunnryd/bargein/pkg/device"
	"github.com/harunnryd/bargein/pkg/frames"
	"github.com/harunnryd/bargein/pkg/interrupt"
	"github.com/harunnryd/bargein/pkg/metrics"
	"github.com/harunnryd/bargein/pkg/providers/mock"
	"github.com/harunnryd/bargein/pkg/segment"
)

const frameStep = 100 * time.Millisecond

type sink struct {
	mu            sync.Mutex
	speechStarts  int
	transcripts   []Transcript
	interruptions []interrupt.Event
	errors        []string
	transcriptCh  chan Transcript
}

func newSink() *sink {
	return &sink{transcriptCh: make(chan Transcript, 16)}
}

func (s *sink) callbacks() Callbacks {
	return Callbacks{
		OnSpeechStart: func() {
			s.mu.Lock()
			s.speechStarts++
			s.mu.Unlock()
		},
		OnTranscriptionComplete: func(text string, source Source) {
			t := Transcript{Text: text, Source: source}
			s.mu.Lock()
			s.transcripts = append(s.transcripts, t)
			s.mu.Unlock()
			s.transcriptCh <- t
		},
		OnInterruption: func(ev interrupt.Event) {
			s.mu.Lock()
			s.interruptions = append(s.interruptions, ev)
			s.mu.Unlock()
		},
		OnError: func(message string) {
			s.mu.Lock()
			s.errors = append(s.errors, message)
			s.mu.Unlock()
		},
	}
}

func (s *sink) counts() (speech, interruptions, transcripts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speechStarts, len(s.interruptions), len(s.transcripts)
}

// harness drives a RawPCM strategy with synthetic frames on a fake clock.
type harness struct {
	t      *testing.T
	raw    *RawPCM
	sink   *sink
	tr     *mock.Transcriber
	signal *tts.Signal
	mem    *metrics.MemoryObserver
	now    time.Time
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.HistorySize = 1
	opts.MinAudioBytes = 1000
	return opts
}

func newHarness(t *testing.T, opts Options, profile device.Profile) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		sink:   newSink(),
		tr:     mock.NewTranscriber("turn on the lights"),
		signal: tts.NewSignal(),
		mem:    metrics.NewMemoryObserver(),
		now:    time.Unix(1700000000, 0),
	}
	h.raw = NewRawPCM(opts, Deps{
		Profile:     profile,
		Transcriber: h.tr,
		TTS:         h.signal,
		Observer:    h.mem,
		Callbacks:   h.sink.callbacks(),
		SessionID:   "sess-1",
		Clock:       func() time.Time { return h.now },
	})
	if err := h.raw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = h.raw.Close() })
	return h
}

// levelFrame returns 100ms of constant PCM whose RMS volume is level.
func levelFrame(level float64) frames.AudioFrame {
	v := int16(level / 100 * 32768)
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = v
	}
	return frames.NewAudioFrame("s1", 0, audio.SamplesToBytes(samples), 16000, 1, nil)
}

func (h *harness) feed(levels ...float64) {
	for _, l := range levels {
		h.raw.HandleAudio(levelFrame(l))
		h.now = h.now.Add(frameStep)
	}
}

func repeat(level float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func (h *harness) awaitTranscript() Transcript {
	h.t.Helper()
	select {
	case tr := <-h.sink.transcriptCh:
		return tr
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for transcript")
	}
	return Transcript{}
}

func (h *harness) awaitState(want segment.State) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.raw.State() != want {
		if time.Now().After(deadline) {
			h.t.Fatalf("expected state %s, got %s", want, h.raw.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScenarioSegmentOpensAndTranscribes(t *testing.T) {
	opts := testOptions()
	opts.Segment.MinSpeechDuration = 200 * time.Millisecond
	h := newHarness(t, opts, device.Profile{})

	h.feed(0, 0, 4, 4)
	if speech, _, _ := h.sink.counts(); speech != 0 {
		t.Fatalf("speech start fired before confirmation")
	}
	h.feed(4)
	if speech, _, _ := h.sink.counts(); speech != 1 {
		t.Fatalf("expected speech start at third loud frame")
	}
	if h.raw.State() != segment.StateSpeechActive {
		t.Fatalf("expected SPEECH_ACTIVE, got %s", h.raw.State())
	}

	// 1400ms of silence keeps the segment open, the 1500ms mark closes it.
	h.feed(repeat(0, 15)...)
	if h.raw.State() != segment.StateSpeechActive {
		t.Fatalf("segment closed before silence duration, state %s", h.raw.State())
	}
	h.feed(0)

	got := h.awaitTranscript()
	if got.Text != "turn on the lights" || got.Source != SourceRawPCM {
		t.Fatalf("unexpected transcript %+v", got)
	}
	h.awaitState(segment.StateListening)

	reqs := h.tr.Requests()
	if len(reqs) != 1 || reqs[0].SampleRate != 16000 || reqs[0].SessionID != "sess-1" || reqs[0].SegmentID == "" {
		t.Fatalf("unexpected transcription request %+v", reqs)
	}
	if h.mem.Count(metrics.EventSegmentClosed) != 1 || h.mem.Count(metrics.EventTranscriptEmitted) != 1 {
		t.Fatalf("expected segment and transcript metrics")
	}
}

func TestQuietAudioNeverOpensSegment(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.feed(repeat(1.0, 60)...)
	if speech, _, _ := h.sink.counts(); speech != 0 {
		t.Fatalf("speech start fired below threshold")
	}
	if h.raw.State() != segment.StateListening || h.tr.Calls() != 0 {
		t.Fatalf("unexpected state %s calls %d", h.raw.State(), h.tr.Calls())
	}
}

func TestTwoLoudFramesNeverConfirm(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.feed(4, 4)
	h.feed(repeat(0, 20)...)
	if speech, _, _ := h.sink.counts(); speech != 0 {
		t.Fatalf("two loud frames should not confirm speech")
	}
}

func TestShortPauseKeepsOneSegment(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.feed(repeat(4, 5)...)
	h.feed(repeat(0, 10)...)
	h.feed(repeat(4, 5)...)
	h.feed(repeat(0, 16)...)
	h.awaitTranscript()

	speech, _, transcripts := h.sink.counts()
	if speech != 1 || transcripts != 1 || h.tr.Calls() != 1 {
		t.Fatalf("expected one continuous segment, got speech=%d transcripts=%d calls=%d",
			speech, transcripts, h.tr.Calls())
	}
}

func TestShortSegmentNeverTranscribed(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.feed(4, 4, 4)
	h.feed(repeat(0, 20)...)
	if h.tr.Calls() != 0 {
		t.Fatalf("segment shorter than minimum reached transcription")
	}
	if h.mem.Count(metrics.EventSegmentDiscarded) != 1 {
		t.Fatalf("expected discarded segment metric")
	}
	if h.raw.State() != segment.StateListening {
		t.Fatalf("expected LISTENING, got %s", h.raw.State())
	}
}

func TestSmallSegmentSettlesWithoutTranscription(t *testing.T) {
	opts := testOptions()
	opts.MinAudioBytes = 10 << 20
	h := newHarness(t, opts, device.Profile{})
	h.feed(repeat(4, 6)...)
	h.feed(repeat(0, 16)...)
	if h.tr.Calls() != 0 {
		t.Fatalf("expected no transcription below min audio bytes")
	}
	if h.raw.State() != segment.StateListening {
		t.Fatalf("expected immediate settle, got %s", h.raw.State())
	}
}

func TestScenarioInterruptionDebounce(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.signal.Set(true)

	h.feed(4, 4, 4)
	if _, interruptions, _ := h.sink.counts(); interruptions != 1 {
		t.Fatalf("expected exactly one interruption, got %d", interruptions)
	}
	// 200ms later, still inside the debounce window.
	h.now = h.now.Add(100 * time.Millisecond)
	h.feed(4)
	if _, interruptions, _ := h.sink.counts(); interruptions != 1 {
		t.Fatalf("interruption fired inside debounce window")
	}
}

func TestInterruptionsNeverWithinDebounce(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.signal.Set(true)
	h.feed(repeat(6, 50)...)

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if len(h.sink.interruptions) < 2 {
		t.Fatalf("expected repeated interruptions over 5s, got %d", len(h.sink.interruptions))
	}
	for i := 1; i < len(h.sink.interruptions); i++ {
		gap := h.sink.interruptions[i].Timestamp.Sub(h.sink.interruptions[i-1].Timestamp)
		if gap < interrupt.DefaultDebounce {
			t.Fatalf("interruptions %d and %d only %s apart", i-1, i, gap)
		}
	}
}

func TestTTSActiveSuppressesSpeechStart(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.signal.Set(true)

	// Above the speech threshold, below the interruption threshold.
	h.feed(repeat(2, 30)...)
	speech, interruptions, _ := h.sink.counts()
	if speech != 0 || interruptions != 0 {
		t.Fatalf("expected nothing while TTS active, got speech=%d interruptions=%d", speech, interruptions)
	}

	h.feed(repeat(4, 3)...)
	speech, interruptions, _ = h.sink.counts()
	if speech != 0 || interruptions != 1 {
		t.Fatalf("expected only an interruption, got speech=%d interruptions=%d", speech, interruptions)
	}
	if h.raw.State() != segment.StateListening {
		t.Fatalf("segmentation state changed during TTS: %s", h.raw.State())
	}
}

func TestTTSDuringSpeechAbandonsSegment(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.feed(repeat(4, 6)...)
	h.signal.Set(true)
	h.feed(0)
	h.signal.Set(false)
	h.feed(repeat(0, 20)...)

	if h.tr.Calls() != 0 {
		t.Fatalf("abandoned segment reached transcription")
	}
	if h.mem.Count(metrics.EventSegmentAbandoned) != 1 {
		t.Fatalf("expected abandoned metric")
	}
}

func TestEchoRiskRaisesInterruptThreshold(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{HasEchoRisk: true})
	if h.raw.InterruptThreshold() != interrupt.DefaultThreshold+DefaultEchoRiskBoost {
		t.Fatalf("unexpected threshold %f", h.raw.InterruptThreshold())
	}
	h.signal.Set(true)
	h.feed(repeat(3.5, 10)...)
	if _, interruptions, _ := h.sink.counts(); interruptions != 0 {
		t.Fatalf("echo-risk profile interrupted below boosted threshold")
	}
}

func TestHallucinationFiltered(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.tr.Default = mock.Response{Text: "Thanks for watching!"}
	h.feed(repeat(4, 6)...)
	h.feed(repeat(0, 16)...)
	h.awaitState(segment.StateListening)

	deadline := time.Now().Add(time.Second)
	for h.mem.Count(metrics.EventTranscriptFiltered) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, _, transcripts := h.sink.counts(); transcripts != 0 {
		t.Fatalf("hallucination reached the callback")
	}
	if h.mem.Count(metrics.EventTranscriptFiltered) != 1 {
		t.Fatalf("expected filtered metric")
	}
}

func TestTranscribeErrorDegradesToNoTranscript(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.tr.Default = mock.Response{Err: errors.New("backend down")}
	h.feed(repeat(4, 6)...)
	h.feed(repeat(0, 16)...)
	h.awaitState(segment.StateListening)

	if _, _, transcripts := h.sink.counts(); transcripts != 0 {
		t.Fatalf("unexpected transcript after error")
	}
	if h.mem.Count(metrics.EventTranscribeError) != 1 {
		t.Fatalf("expected transcribe error metric")
	}
}

func TestCloseCancelsInFlightTranscription(t *testing.T) {
	h := newHarness(t, testOptions(), device.Profile{})
	h.tr.Block = make(chan struct{})
	h.feed(repeat(4, 6)...)
	h.feed(repeat(0, 16)...)

	deadline := time.Now().Add(time.Second)
	for h.tr.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := h.raw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.raw.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, _, transcripts := h.sink.counts(); transcripts != 0 {
		t.Fatalf("transcript emitted after close")
	}
	if h.raw.State() != segment.StateIdle {
		t.Fatalf("expected IDLE after close, got %s", h.raw.State())
	}
}

func TestArtifactsWritten(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewArtifactWriter(dir, "flac")
	if err != nil {
		t.Fatalf("artifact writer: %v", err)
	}
	path, err := writer.Write("sess/1", "seg-1", audio.SamplesToBytes(audio.Tone(440, 0.3, 200*time.Millisecond, 16000)), 16000)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if want := dir + "/sess_1/seg-1.flac"; path != want {
		t.Fatalf("unexpected path %s, want %s", path, want)
	}
}
