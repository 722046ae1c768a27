package bargein

import (
	"fmt"
	"strings"

	"github.com/harunnryd/bargein/pkg/adapters/stt"
	"github.com/harunnryd/bargein/pkg/adapters/transcribe"
	"github.com/harunnryd/bargein/pkg/transports"
)

// NativeFactoryBuilder returns the per-session engine factory of a native
// recognition provider.
type NativeFactoryBuilder func(cfg Config) (stt.Factory, error)
type TranscriberBuilder func(cfg Config) (transcribe.Transcriber, error)
type TransportBuilder func(cfg Config) (transports.Transport, error)

type ProviderRegistry struct {
	native      map[string]NativeFactoryBuilder
	transcriber map[string]TranscriberBuilder
	transport   map[string]TransportBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		native:      make(map[string]NativeFactoryBuilder),
		transcriber: make(map[string]TranscriberBuilder),
		transport:   make(map[string]TransportBuilder),
	}
}

// NewDefaultProviderRegistry registers the built-in providers: deepgram and
// mock native engines, openai and mock transcribers, websocket and mock
// transports.
func NewDefaultProviderRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterNative("deepgram", buildDeepgram)
	r.RegisterNative("mock", buildMockNative)
	r.RegisterTranscriber("openai", buildOpenAI)
	r.RegisterTranscriber("mock", buildMockTranscriber)
	r.RegisterTransport("websocket", buildWebsocketTransport)
	r.RegisterTransport("mock", buildMockTransport)
	return r
}

func (r *ProviderRegistry) RegisterTransport(name string, builder TransportBuilder) {
	r.transport[providerKey(name)] = builder
}

func (r *ProviderRegistry) BuildTransport(provider string, cfg Config) (transports.Transport, error) {
	fn := r.transport[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) RegisterNative(name string, builder NativeFactoryBuilder) {
	r.native[providerKey(name)] = builder
}

func (r *ProviderRegistry) RegisterTranscriber(name string, builder TranscriberBuilder) {
	r.transcriber[providerKey(name)] = builder
}

// BuildNativeFactory returns nil without error when provider is empty; the
// engine then runs every session on the raw PCM path.
func (r *ProviderRegistry) BuildNativeFactory(provider string, cfg Config) (stt.Factory, error) {
	if providerKey(provider) == "" {
		return nil, nil
	}
	fn := r.native[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("native provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTranscriber(provider string, cfg Config) (transcribe.Transcriber, error) {
	fn := r.transcriber[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("transcriber provider not registered: %s", provider)
	}
	return fn(cfg)
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
