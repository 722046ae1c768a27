package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesToSamples decodes little-endian PCM16. A trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func SamplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(s []int16, channels int) []int16 {
	if channels <= 1 {
		return s
	}
	out := make([]int16, len(s)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(s[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// DurationOf returns the play time of mono PCM16 bytes at rate.
func DurationOf(pcmBytes int, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(pcmBytes/2) * time.Second / time.Duration(rate)
}

// BytesFor returns the mono PCM16 byte count covering d at rate.
func BytesFor(d time.Duration, rate int) int {
	return int(d*time.Duration(rate)/time.Second) * 2
}

// Tone generates a sine wave at amplitude (0..1) of full scale.
func Tone(freq float64, amplitude float64, d time.Duration, rate int) []int16 {
	n := int(d * time.Duration(rate) / time.Second)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func floatToInt16(s float64) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(s * 32767)
}
