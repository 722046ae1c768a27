package websocket

// ClientMessage is any JSON message a browser sends. Microphone audio may
// also arrive as binary messages of mono PCM16LE at the start sample rate.
type ClientMessage struct {
	// Type is one of start, media, tts, mic_error, stop.
	Type string `json:"type"`

	SessionID    string `json:"session_id,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	Platform     string `json:"platform,omitempty"`
	NativeSpeech *bool  `json:"native_speech,omitempty"`
	TouchPoints  int    `json:"touch_points,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Device       string `json:"device,omitempty"`

	// Payload is base64 PCM16LE for media messages.
	Payload string `json:"payload,omitempty"`
	Active  bool   `json:"active,omitempty"`

	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServerMessage is an event sent to the browser: ready, speech_start,
// transcript, interruption, error or debug.
type ServerMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	Text      string  `json:"text,omitempty"`
	Source    string  `json:"source,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	Message   string  `json:"message,omitempty"`
	Line      string  `json:"line,omitempty"`
}
