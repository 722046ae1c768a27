package stt

import (
	"strconv"
	"time"

	"github.com/harunnryd/bargein/pkg/errorsx"
	"github.com/harunnryd/bargein/pkg/frames"
)

func baseMeta(cfg Config) map[string]string {
	meta := map[string]string{
		frames.MetaStreamID: cfg.StreamID,
		frames.MetaSource:   "stt",
	}
	if cfg.SessionID != "" {
		meta[frames.MetaSessionID] = cfg.SessionID
	}
	if cfg.TraceID != "" {
		meta[frames.MetaTraceID] = cfg.TraceID
	}
	return meta
}

// NewTranscriptFrame wraps an interim or final hypothesis.
func NewTranscriptFrame(cfg Config, text string, final bool) frames.TextFrame {
	meta := baseMeta(cfg)
	meta[frames.MetaIsFinal] = strconv.FormatBool(final)
	return frames.NewTextFrame(cfg.StreamID, time.Now().UnixNano(), text, meta)
}

// NewSpeechStartFrame reports engine-side speech detection.
func NewSpeechStartFrame(cfg Config) frames.ControlFrame {
	meta := baseMeta(cfg)
	meta[frames.MetaReason] = "speech_started"
	return frames.NewControlFrame(cfg.StreamID, time.Now().UnixNano(), frames.ControlSpeechStart, meta)
}

// NewUtteranceEndFrame reports the engine's end-of-utterance signal.
func NewUtteranceEndFrame(cfg Config) frames.ControlFrame {
	meta := baseMeta(cfg)
	meta[frames.MetaReason] = "utterance_end"
	return frames.NewControlFrame(cfg.StreamID, time.Now().UnixNano(), frames.ControlFlush, meta)
}

// NewErrorFrame reports an engine failure. Recoverability follows the reason.
func NewErrorFrame(cfg Config, reason errorsx.ReasonCode, message string) frames.ControlFrame {
	meta := baseMeta(cfg)
	meta[frames.MetaReason] = string(reason)
	meta[frames.MetaErrorMessage] = message
	meta[frames.MetaRecoverable] = strconv.FormatBool(errorsx.Recoverable(reason))
	return frames.NewControlFrame(cfg.StreamID, time.Now().UnixNano(), frames.ControlError, meta)
}

// IsFinal reports whether a transcript frame is a final result.
func IsFinal(f frames.TextFrame) bool {
	return f.Meta()[frames.MetaIsFinal] == "true"
}

// EngineError is the decoded form of an error frame.
type EngineError struct {
	Reason      errorsx.ReasonCode
	Message     string
	Recoverable bool
}

func (e EngineError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Message
}

// ErrorOf decodes an error frame.
func ErrorOf(f frames.ControlFrame) (EngineError, bool) {
	if f.Code() != frames.ControlError {
		return EngineError{}, false
	}
	meta := f.Meta()
	reason := errorsx.ReasonCode(meta[frames.MetaReason])
	if reason == "" {
		reason = errorsx.ReasonNativeFatal
	}
	return EngineError{
		Reason:      reason,
		Message:     meta[frames.MetaErrorMessage],
		Recoverable: meta[frames.MetaRecoverable] == "true",
	}, true
}
