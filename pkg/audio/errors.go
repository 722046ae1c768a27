package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/bargein/pkg/errorsx"
)

// Kind classifies a microphone acquisition failure.
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindNoDevice         Kind = "no_device"
	KindDeviceBusy       Kind = "device_busy"
	KindInsecureContext  Kind = "insecure_context"
	KindUnknown          Kind = "unknown"
)

// AcquisitionError is returned when the microphone cannot be opened.
type AcquisitionError struct {
	Kind Kind
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return "microphone: " + string(e.Kind)
	}
	return fmt.Sprintf("microphone %s: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *AcquisitionError) Message() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Microphone access was denied. Allow microphone access and try again."
	case KindNoDevice:
		return "No microphone was found. Connect a microphone and try again."
	case KindDeviceBusy:
		return "The microphone is in use by another application."
	case KindInsecureContext:
		return "Microphone access requires a secure (HTTPS) connection."
	default:
		return "The microphone could not be started."
	}
}

// Reason maps the kind to an errorsx reason code.
func (e *AcquisitionError) Reason() errorsx.ReasonCode {
	switch e.Kind {
	case KindPermissionDenied:
		return errorsx.ReasonMicPermissionDenied
	case KindNoDevice:
		return errorsx.ReasonMicNoDevice
	case KindDeviceBusy:
		return errorsx.ReasonMicBusy
	case KindInsecureContext:
		return errorsx.ReasonMicInsecureContext
	default:
		return errorsx.ReasonMicUnknown
	}
}

// Classify wraps err in an AcquisitionError based on its message. Errors
// that are already classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var acq *AcquisitionError
	if errors.As(err, &acq) {
		return err
	}
	return &AcquisitionError{Kind: kindFromText(err.Error()), Err: err}
}

// ClassifyBrowser classifies a getUserMedia failure reported by a remote
// client as its DOMException name and message.
func ClassifyBrowser(name, message string) *AcquisitionError {
	var kind Kind
	switch strings.TrimSpace(name) {
	case "NotAllowedError", "PermissionDeniedError":
		kind = KindPermissionDenied
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError":
		kind = KindNoDevice
	case "NotReadableError", "TrackStartError", "AbortError":
		kind = KindDeviceBusy
	case "SecurityError":
		kind = KindInsecureContext
	default:
		kind = kindFromText(message)
	}
	text := strings.TrimSpace(name)
	if message != "" {
		text = strings.TrimSpace(text + ": " + message)
	}
	if text == "" {
		text = "unknown microphone error"
	}
	return &AcquisitionError{Kind: kind, Err: errors.New(text)}
}

func kindFromText(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "permission"), strings.Contains(m, "access denied"), strings.Contains(m, "not allowed"):
		return KindPermissionDenied
	case strings.Contains(m, "no device"), strings.Contains(m, "does not exist"), strings.Contains(m, "not found"),
		strings.Contains(m, "no backend"):
		return KindNoDevice
	case strings.Contains(m, "busy"), strings.Contains(m, "in use"), strings.Contains(m, "already"):
		return KindDeviceBusy
	case strings.Contains(m, "secure"), strings.Contains(m, "https"):
		return KindInsecureContext
	default:
		return KindUnknown
	}
}
