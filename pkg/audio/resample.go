package audio

import (
	"fmt"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono PCM16 between sample rates. Equal rates pass
// through untouched.
type Resampler struct {
	from, to int

	mu        sync.Mutex
	resampler resampling.Resampler
}

func NewResampler(from, to int) (*Resampler, error) {
	r := &Resampler{from: from, to: to}
	if from == to || from <= 0 || to <= 0 {
		return r, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	r.resampler = rs
	return r, nil
}

func (r *Resampler) InputRate() int  { return r.from }
func (r *Resampler) OutputRate() int { return r.to }

// Process resamples one block of samples. The underlying filter keeps state
// across calls, so blocks must be fed in capture order.
func (r *Resampler) Process(samples []int16) ([]int16, error) {
	if r.resampler == nil {
		return samples, nil
	}
	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s) / 32768.0
	}
	r.mu.Lock()
	output, err := r.resampler.Process(input)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	out := make([]int16, len(output))
	for i, s := range output {
		out[i] = floatToInt16(s)
	}
	return out, nil
}
