package transports

import (
	"context"

	"github.com/harunnryd/bargein/pkg/frames"
)

// Transport defines a vendor-agnostic I/O boundary for audio/text/control frames.
// Implementations are responsible for their own network lifecycle.
//
// Inbound frames carry frames.MetaSessionID. A session opens with a
// frames.SystemStart frame whose meta holds the client's device signals and
// ends with frames.SystemStop. Outbound frames are routed by the same key.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., listen addresses).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// SessionCounter is implemented by transports that track connected clients.
type SessionCounter interface {
	ActiveSessions() int
}
