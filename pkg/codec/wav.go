package codec

import "encoding/binary"

// WAV wraps PCM in a canonical 44-byte RIFF header.
type WAV struct{}

func (WAV) ContentType() string { return "audio/wav" }
func (WAV) Extension() string   { return ".wav" }

func (WAV) Encode(pcm []byte, rate int) ([]byte, error) {
	out := make([]byte, 44+len(pcm))
	byteRate := rate * Channels * BitsPerSample / 8
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], Channels)
	binary.LittleEndian.PutUint32(out[24:], uint32(rate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(out[34:], BitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out, nil
}
