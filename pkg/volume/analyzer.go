// Package volume turns PCM frames into a smoothed 0-100 loudness value.
package volume

import (
	"encoding/binary"
	"math"
	"sync"
)

const DefaultHistory = 10

// Reading is one analyzed frame.
type Reading struct {
	// Instant is the RMS of this frame on a 0-100 scale.
	Instant float64
	// Smoothed is the mean of the recent history and is the value the
	// detectors compare against thresholds.
	Smoothed float64
}

// Analyzer computes RMS loudness over a bounded history.
type Analyzer struct {
	mu      sync.Mutex
	size    int
	history []float64
	next    int
	filled  int
}

func NewAnalyzer(history int) *Analyzer {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Analyzer{size: history, history: make([]float64, history)}
}

// Push analyzes one frame of samples.
func (a *Analyzer) Push(samples []int16) Reading {
	return a.add(RMS(samples))
}

// PushPCM analyzes little-endian PCM16 bytes.
func (a *Analyzer) PushPCM(pcm []byte) Reading {
	n := len(pcm) / 2
	if n == 0 {
		return a.add(0)
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += v * v
	}
	return a.add(math.Sqrt(sum/float64(n)) * 100)
}

func (a *Analyzer) add(instant float64) Reading {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[a.next] = instant
	a.next = (a.next + 1) % a.size
	if a.filled < a.size {
		a.filled++
	}
	var sum float64
	for i := 0; i < a.filled; i++ {
		sum += a.history[i]
	}
	return Reading{Instant: instant, Smoothed: sum / float64(a.filled)}
}

// Reset clears the history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	for i := range a.history {
		a.history[i] = 0
	}
	a.next = 0
	a.filled = 0
	a.mu.Unlock()
}

// RMS returns the root mean square of normalized samples scaled to 0-100.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) * 100
}
