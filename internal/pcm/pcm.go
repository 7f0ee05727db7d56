// Package pcm converts between 16-bit little-endian PCM and normalized
// float32 samples.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOddLength is returned when a frame cannot be split into whole samples.
var ErrOddLength = errors.New("pcm frame length is not a multiple of 2")

// Decode converts s16le bytes to samples in [-1, 1) by dividing by 32768.
func Decode(frame []byte) ([]float32, error) {
	if len(frame)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(frame))
	}
	n := len(frame) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// Encode converts samples back to s16le, clamping to the int16 range.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * 32768.0
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
