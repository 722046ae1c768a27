package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/bargein/pkg/codec"
)

// ArtifactWriter stores closed segments as encoded audio files, one
// directory per session.
type ArtifactWriter struct {
	dir     string
	encoder codec.Encoder
}

func NewArtifactWriter(dir, format string) (*ArtifactWriter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("artifacts dir required")
	}
	enc, err := codec.New(format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ArtifactWriter{dir: dir, encoder: enc}, nil
}

func (w *ArtifactWriter) Dir() string { return w.dir }

// Write encodes pcm and returns the file path.
func (w *ArtifactWriter) Write(sessionID, segmentID string, pcm []byte, rate int) (string, error) {
	if w == nil {
		return "", nil
	}
	blob, err := w.encoder.Encode(pcm, rate)
	if err != nil {
		return "", err
	}
	sessionDir := filepath.Join(w.dir, safeName(sessionID))
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(sessionDir, safeName(segmentID)+w.encoder.Extension())
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
