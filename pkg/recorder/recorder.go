// Package recorder buffers mono PCM16 in fixed-duration chunks so a closed
// speech segment can be handed off while capture keeps running.
package recorder

import (
	"sync"
	"time"
)

const DefaultChunk = time.Second

// Recorder is safe for concurrent use. Stop hands the buffered audio off and
// immediately restarts recording so the next segment keeps its lead-in.
type Recorder struct {
	mu         sync.Mutex
	chunkBytes int
	chunks     [][]byte
	partial    []byte
	recording  bool
}

// New returns a recorder sealing a chunk every chunk of audio at rate Hz.
func New(rate int, chunk time.Duration) *Recorder {
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	if rate <= 0 {
		rate = 16000
	}
	n := int(chunk*time.Duration(rate)/time.Second) * 2
	if n < 2 {
		n = 2
	}
	return &Recorder{chunkBytes: n}
}

// Start begins recording. Calling it while recording is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	r.recording = true
	r.mu.Unlock()
}

// Recording reports whether Write currently buffers audio.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Write appends PCM bytes. It is a no-op while not recording.
func (r *Recorder) Write(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	for len(pcm) > 0 {
		room := r.chunkBytes - len(r.partial)
		n := min(room, len(pcm))
		r.partial = append(r.partial, pcm[:n]...)
		pcm = pcm[n:]
		if len(r.partial) == r.chunkBytes {
			r.chunks = append(r.chunks, r.partial)
			r.partial = make([]byte, 0, r.chunkBytes)
		}
	}
}

// Stop returns every buffered byte, clears the buffer and keeps recording.
// The result is empty only when nothing was captured.
func (r *Recorder) Stop() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := len(r.partial)
	for _, c := range r.chunks {
		size += len(c)
	}
	if size == 0 {
		return nil
	}
	out := make([]byte, 0, size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	out = append(out, r.partial...)
	r.resetLocked()
	return out
}

// Discard drops buffered audio without returning it.
func (r *Recorder) Discard() {
	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
}

// TrimIdle keeps only the last keep sealed chunks plus the partial chunk.
func (r *Recorder) TrimIdle(keep int) {
	if keep < 0 {
		keep = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.chunks) <= keep {
		return
	}
	r.chunks = append([][]byte(nil), r.chunks[len(r.chunks)-keep:]...)
}

// Len returns the buffered byte count.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.partial)
	for _, c := range r.chunks {
		n += len(c)
	}
	return n
}

// Chunks returns the number of sealed chunks.
func (r *Recorder) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Close stops recording and releases the buffer.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.recording = false
	r.resetLocked()
	r.mu.Unlock()
}

func (r *Recorder) resetLocked() {
	r.chunks = nil
	r.partial = make([]byte, 0, r.chunkBytes)
}
