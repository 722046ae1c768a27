package errorsx

import (
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonTranscribe)
	if Reason(err) != ReasonTranscribe {
		t.Fatalf("expected reason %s, got %s", ReasonTranscribe, Reason(err))
	}
	if !HasReason(err, ReasonTranscribe) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonNativeNetwork)
	second := Wrap(first, ReasonTranscribe)
	if Reason(second) != ReasonNativeNetwork {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("start engine: %w", Wrap(assertErr{}, ReasonNativeConnect))
	if Reason(err) != ReasonNativeConnect {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

func TestRecoverable(t *testing.T) {
	cases := map[ReasonCode]bool{
		ReasonNativeNetwork:       true,
		ReasonNativeCapture:       true,
		ReasonNativeConnect:       true,
		ReasonNativeFatal:         false,
		ReasonMicPermissionDenied: false,
		ReasonUnknown:             false,
	}
	for reason, want := range cases {
		if got := Recoverable(reason); got != want {
			t.Fatalf("Recoverable(%s) = %v, want %v", reason, got, want)
		}
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestNewAndIsRecoverable(t *testing.T) {
	err := New(ReasonNativeNetwork, "socket closed after %d frames", 12)
	if err.Error() != "socket closed after 12 frames" || !IsRecoverable(err) {
		t.Fatalf("unexpected error %v recoverable=%v", err, IsRecoverable(err))
	}
	if IsRecoverable(New(ReasonNativeFatal, "not-allowed")) || IsRecoverable(assertErr{}) {
		t.Fatalf("expected fatal and plain errors to be unrecoverable")
	}
}
