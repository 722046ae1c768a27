package frames

// Meta keys shared by transports, engines and pipelines.
const (
	MetaStreamID  = "stream_id"
	MetaSessionID = "session_id"
	MetaTraceID   = "trace_id"
	MetaSource    = "source"
	MetaReason    = "reason"
	MetaIsFinal   = "is_final"

	MetaUserAgent    = "user_agent"
	MetaPlatform     = "platform"
	MetaNativeSpeech = "native_speech"
	MetaTouchPoints  = "touch_points"
	MetaDevice       = "device"

	MetaErrorName    = "error_name"
	MetaErrorMessage = "error_message"
	MetaRecoverable  = "recoverable"

	MetaSegmentID        = "segment_id"
	MetaVolume           = "volume"
	MetaTranscriptSource = "transcript_source"
)

const MetaDebugLine = "debug_line"

// System frame names exchanged with transports.
const (
	SystemStart    = "start"
	SystemStop     = "stop"
	SystemMicError = "mic_error"
	SystemDebug    = "debug"
)
