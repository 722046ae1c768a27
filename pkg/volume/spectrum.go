package volume

import "math"

const (
	DefaultFFTSize = 2048
	minDecibels    = -100.0
	maxDecibels    = -30.0
)

// SpectrumAnalyzer measures loudness in the frequency domain the way a
// browser analyser node does: Hann window, FFT, magnitudes in dB mapped
// onto 0-255 between -100 dB and -30 dB, averaged across bins and scaled
// to 0-100.
type SpectrumAnalyzer struct {
	size   int
	window []float64
	re, im []float64
}

// NewSpectrumAnalyzer rounds size up to a power of two.
func NewSpectrumAnalyzer(size int) *SpectrumAnalyzer {
	if size <= 0 {
		size = DefaultFFTSize
	}
	n := 1
	for n < size {
		n <<= 1
	}
	return &SpectrumAnalyzer{
		size:   n,
		window: hannWindow(n),
		re:     make([]float64, n),
		im:     make([]float64, n),
	}
}

func (s *SpectrumAnalyzer) Size() int { return s.size }

// Level analyzes the most recent Size() samples; shorter input is zero padded.
// Not safe for concurrent use.
func (s *SpectrumAnalyzer) Level(samples []int16) float64 {
	if len(samples) > s.size {
		samples = samples[len(samples)-s.size:]
	}
	for i := range s.re {
		s.re[i], s.im[i] = 0, 0
	}
	for i, v := range samples {
		s.re[i] = float64(v) / 32768.0 * s.window[i]
	}
	fft(s.re, s.im)

	bins := s.size / 2
	var sum float64
	for i := 0; i < bins; i++ {
		mag := math.Hypot(s.re[i], s.im[i]) / float64(s.size)
		db := minDecibels
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		sum += byteLevel(db)
	}
	return sum / float64(bins) / 2.55
}

func byteLevel(db float64) float64 {
	v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return math.Floor(v)
}
