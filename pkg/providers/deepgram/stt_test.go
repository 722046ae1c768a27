package deepgram

import (
	"testing"

	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

func newTestSTT() (*StreamingSTT, *callback) {
	s := New(Config{APIKey: "k", Config: stt.Config{StreamID: "s1", SessionID: "sess"}})
	return s, &callback{parent: s}
}

func TestCallbackEmitsTranscriptFrames(t *testing.T) {
	s, cb := newTestSTT()

	mr := &msginterfaces.MessageResponse{IsFinal: true}
	mr.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "  hello there "}}
	if err := cb.Message(mr); err != nil {
		t.Fatalf("message: %v", err)
	}

	f := <-s.Results()
	tf, ok := f.(frames.TextFrame)
	if !ok {
		t.Fatalf("expected text frame, got %T", f)
	}
	if tf.Text() != "hello there" || !stt.IsFinal(tf) {
		t.Fatalf("unexpected frame %q final=%v", tf.Text(), stt.IsFinal(tf))
	}
	if tf.Meta()[frames.MetaSessionID] != "sess" {
		t.Fatalf("session meta missing")
	}
}

func TestCallbackSkipsEmptyTranscript(t *testing.T) {
	s, cb := newTestSTT()
	mr := &msginterfaces.MessageResponse{}
	mr.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "   "}}
	_ = cb.Message(mr)
	select {
	case f := <-s.Results():
		t.Fatalf("unexpected frame %v", f)
	default:
	}
}

func TestCallbackErrorClassification(t *testing.T) {
	s, cb := newTestSTT()
	_ = cb.Error(&msginterfaces.ErrorResponse{ErrCode: "401", ErrMsg: "invalid credentials"})
	f := (<-s.Results()).(frames.ControlFrame)
	ee, ok := stt.ErrorOf(f)
	if !ok {
		t.Fatalf("expected error frame")
	}
	if ee.Reason != errorsx.ReasonNativeFatal || ee.Recoverable {
		t.Fatalf("expected fatal unrecoverable, got %+v", ee)
	}

	_ = cb.Error(&msginterfaces.ErrorResponse{ErrCode: "NET-0001", ErrMsg: "socket reset"})
	f = (<-s.Results()).(frames.ControlFrame)
	ee, _ = stt.ErrorOf(f)
	if ee.Reason != errorsx.ReasonNativeNetwork || !ee.Recoverable {
		t.Fatalf("expected recoverable network error, got %+v", ee)
	}
}

func TestServerCloseIsRecoverableError(t *testing.T) {
	s, cb := newTestSTT()
	_ = cb.Close(&msginterfaces.CloseResponse{})
	f := (<-s.Results()).(frames.ControlFrame)
	if ee, ok := stt.ErrorOf(f); !ok || !ee.Recoverable {
		t.Fatalf("expected recoverable error on server close")
	}
}

func TestEmitAfterCloseIsSafe(t *testing.T) {
	s, cb := newTestSTT()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	_ = cb.SpeechStarted(&msginterfaces.SpeechStartedResponse{})
	_ = cb.Close(&msginterfaces.CloseResponse{})
	if _, ok := <-s.Results(); ok {
		t.Fatalf("results channel should be closed")
	}
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	if _, err := NewFactory(Config{})(stt.Config{StreamID: "x"}); !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
	eng, err := NewFactory(Config{APIKey: "k", Language: "en-US"})(stt.Config{StreamID: "x"})
	if err != nil || eng.Name() != "deepgram_streaming" {
		t.Fatalf("unexpected factory result %v %v", eng, err)
	}
	if eng.(*StreamingSTT).cfg.Language != "en-US" {
		t.Fatalf("expected base language to apply")
	}
}
