package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

const sampleRate = 16000

// readWAV validates a canonical 16 kHz 16-bit mono PCM WAV and returns its
// sample data.
func readWAV(r io.Reader) ([]byte, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	rate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	if audioFormat != 1 || numChannels != 1 || bitsPerSample != 16 {
		return nil, fmt.Errorf("only 16-bit mono PCM is supported (format=%d channels=%d bits=%d)",
			audioFormat, numChannels, bitsPerSample)
	}
	if rate != sampleRate {
		return nil, fmt.Errorf("sample rate is %d Hz, expected %d Hz", rate, sampleRate)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return data[:len(data)&^1], nil
}

// synthesize returns cycles of 1.5 s near-silence followed by 1.5 s of a
// 440 Hz tone, as s16le.
func synthesize(cycles int) []byte {
	const half = sampleRate * 3 / 2
	out := make([]byte, 0, cycles*half*4)
	buf := make([]byte, 2)
	for c := 0; c < cycles; c++ {
		for i := 0; i < half; i++ {
			binary.LittleEndian.PutUint16(buf, uint16(int16(16)))
			out = append(out, buf...)
		}
		for i := 0; i < half; i++ {
			v := 0.3 * math.Sin(2*math.Pi*440*float64(i)/sampleRate)
			binary.LittleEndian.PutUint16(buf, uint16(int16(v*32767)))
			out = append(out, buf...)
		}
	}
	return out
}
