// Package interrupt detects the user talking over synthesized speech.
package interrupt

import (
	"sync"
	"time"
)

const (
	DefaultThreshold          = 3.0
	DefaultConfirmationFrames = 3
	DefaultDebounce           = time.Second
)

// Event is emitted when an interruption is confirmed.
type Event struct {
	Timestamp time.Time
	Volume    float64
}

type Config struct {
	// Threshold is compared against smoothed volume; it sits above the normal
	// speech threshold so playback echo does not trip it.
	Threshold          float64
	ConfirmationFrames int
	// Debounce defaults to DefaultDebounce when zero. A negative value
	// disables it.
	Debounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ConfirmationFrames <= 0 {
		c.ConfirmationFrames = DefaultConfirmationFrames
	}
	switch {
	case c.Debounce == 0:
		c.Debounce = DefaultDebounce
	case c.Debounce < 0:
		c.Debounce = 0
	}
	return c
}

// Detector is only fed while TTS is active. It never touches segmentation.
type Detector struct {
	mu        sync.Mutex
	cfg       Config
	count     int
	lastFired time.Time
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

func (d *Detector) Threshold() float64 { return d.cfg.Threshold }

// Observe feeds one reading. Readings inside the debounce window of the last
// interruption are ignored entirely.
func (d *Detector) Observe(now time.Time, volume float64) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastFired.IsZero() && now.Sub(d.lastFired) < d.cfg.Debounce {
		d.count = 0
		return Event{}, false
	}
	if volume <= d.cfg.Threshold {
		d.count = 0
		return Event{}, false
	}
	d.count++
	if d.count < d.cfg.ConfirmationFrames {
		return Event{}, false
	}
	d.count = 0
	d.lastFired = now
	return Event{Timestamp: now, Volume: volume}, true
}

// Reset clears the confirmation count. The debounce window survives so a
// TTS toggle cannot bypass it.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.count = 0
	d.mu.Unlock()
}

// LastFired returns the time of the most recent interruption.
func (d *Detector) LastFired() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFired
}
