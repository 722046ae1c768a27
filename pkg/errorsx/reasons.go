package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonMicPermissionDenied ReasonCode = "mic_permission_denied"
	ReasonMicNoDevice         ReasonCode = "mic_no_device"
	ReasonMicBusy             ReasonCode = "mic_busy"
	ReasonMicInsecureContext  ReasonCode = "mic_insecure_context"
	ReasonMicUnknown          ReasonCode = "mic_unknown"

	ReasonNativeConnect  ReasonCode = "native_connect"
	ReasonNativeNetwork  ReasonCode = "native_network"
	ReasonNativeCapture  ReasonCode = "native_capture"
	ReasonNativeFatal    ReasonCode = "native_fatal"
	ReasonNativeRetry    ReasonCode = "native_retry"
	ReasonNativeFallback ReasonCode = "native_fallback"

	ReasonTranscribe            ReasonCode = "transcribe"
	ReasonTranscribeRateLimit   ReasonCode = "transcribe_rate_limit"
	ReasonTranscribeCircuitOpen ReasonCode = "transcribe_circuit_open"
	ReasonTranscribeEncode      ReasonCode = "transcribe_encode"

	ReasonTransportSend ReasonCode = "transport_send"
	ReasonConfigInvalid ReasonCode = "config_invalid"
)

// Recoverable reports whether a reason describes a transient engine failure.
func Recoverable(reason ReasonCode) bool {
	switch reason {
	case ReasonNativeNetwork, ReasonNativeCapture, ReasonNativeConnect:
		return true
	default:
		return false
	}
}
