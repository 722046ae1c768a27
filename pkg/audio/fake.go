package audio

import (
	"os"
	"sync"
	"time"
)

// FakeContext replays in-memory PCM16 mono audio as if it came from a
// microphone. Used by tests and file replay.
type FakeContext struct {
	pcm      []byte
	rate     uint32
	realtime bool
	// Err, when set, is returned from NewCapture.
	Err error
}

func NewFakeContext(pcm []byte, rate uint32, realtime bool) *FakeContext {
	if rate == 0 {
		rate = TranscriptionRate
	}
	return &FakeContext{pcm: pcm, rate: rate, realtime: realtime}
}

// NewFakeContextFromWAV loads a 16-bit mono WAV file, skipping its header.
func NewFakeContextFromWAV(path string, rate uint32, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContext(data, rate, realtime), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if f.Err != nil {
		return nil, Classify(f.Err)
	}
	config = config.withDefaults()
	return &FakeCapture{
		pcm:        f.pcm,
		rate:       f.rate,
		frameBytes: int(config.FrameSamples) * 2,
		realtime:   f.realtime,
		audioDone:  make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm        []byte
	rate       uint32
	frameBytes int
	realtime   bool
	audioDone  chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole buffer has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) SampleRate() uint32 { return f.rate }
func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos int) int {
	end := min(pos+f.frameBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/2))
	return end
}

// Start delivers the buffer. Without realtime pacing the whole buffer is
// fed synchronously before Start returns.
func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	if !f.realtime {
		if cb := f.callback(); cb != nil {
			for pos := 0; pos < len(f.pcm); {
				pos = f.feedChunk(cb, pos)
			}
		}
		close(f.audioDone)
		close(f.feedDone)
		return nil
	}

	interval := time.Duration(f.frameBytes/2) * time.Second / time.Duration(f.rate)
	go func() {
		defer close(f.feedDone)
		pos := 0
		for pos < len(f.pcm) {
			if cb := f.callback(); cb != nil {
				pos = f.feedChunk(cb, pos)
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
		close(f.audioDone)
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() { f.Stop() }
