// Package codec packs a closed segment's PCM into a container the
// transcription backend accepts.
package codec

import (
	"fmt"
	"strings"
)

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Encoder turns mono PCM16LE into an uploadable blob.
type Encoder interface {
	Encode(pcm []byte, rate int) ([]byte, error)
	ContentType() string
	Extension() string
}

// New returns the encoder for a format name ("flac" or "wav").
func New(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "flac":
		return FLAC{}, nil
	case "wav":
		return WAV{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", format)
	}
}
