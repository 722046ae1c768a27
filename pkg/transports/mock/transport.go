package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/bargein/pkg/frames"
)

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network
// dependency. Client-side helpers build the frames a browser would send.
type Transport struct {
	recvCh chan frames.Frame

	mu     sync.Mutex
	closed bool
	sent   []frames.Frame
	notify chan struct{}
	pts    *frames.PTSGen
}

func New() *Transport {
	return &Transport{
		recvCh: make(chan frames.Frame, 256),
		notify: make(chan struct{}, 1),
		pts:    frames.NewPTSGen(),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.recvCh)
	}
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) Send(f frames.Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.sent = append(t.sent, f)
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
	return nil
}

// Push injects an inbound frame into the transport.
func (t *Transport) Push(f frames.Frame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	select {
	case t.recvCh <- f:
		return true
	default:
		return false
	}
}

// StartSession pushes a start frame; meta holds device signals.
func (t *Transport) StartSession(sessionID string, meta map[string]string) bool {
	m := map[string]string{frames.MetaSessionID: sessionID}
	for k, v := range meta {
		m[k] = v
	}
	return t.Push(frames.NewSystemFrame(sessionID, t.pts.Next(sessionID), frames.SystemStart, m))
}

func (t *Transport) Audio(sessionID string, pcm []byte, rate int) bool {
	meta := map[string]string{frames.MetaSessionID: sessionID}
	return t.Push(frames.NewAudioFrame(sessionID, t.pts.Next(sessionID), pcm, rate, 1, meta))
}

func (t *Transport) TTS(sessionID string, active bool) bool {
	code := frames.ControlTTSStop
	if active {
		code = frames.ControlTTSStart
	}
	meta := map[string]string{frames.MetaSessionID: sessionID}
	return t.Push(frames.NewControlFrame(sessionID, t.pts.Next(sessionID), code, meta))
}

func (t *Transport) MicError(sessionID, name, message string) bool {
	meta := map[string]string{
		frames.MetaSessionID:    sessionID,
		frames.MetaErrorName:    name,
		frames.MetaErrorMessage: message,
	}
	return t.Push(frames.NewSystemFrame(sessionID, t.pts.Next(sessionID), frames.SystemMicError, meta))
}

func (t *Transport) EndSession(sessionID string) bool {
	meta := map[string]string{frames.MetaSessionID: sessionID}
	return t.Push(frames.NewSystemFrame(sessionID, t.pts.Next(sessionID), frames.SystemStop, meta))
}

// Sent returns a copy of every outbound frame so far.
func (t *Transport) Sent() []frames.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]frames.Frame(nil), t.sent...)
}

// Await waits until an outbound frame matches, returning it.
func (t *Transport) Await(timeout time.Duration, match func(frames.Frame) bool) (frames.Frame, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	seen := 0
	for {
		sent := t.Sent()
		for _, f := range sent[seen:] {
			if match(f) {
				return f, true
			}
		}
		seen = len(sent)
		select {
		case <-t.notify:
		case <-deadline.C:
			return nil, false
		}
	}
}
