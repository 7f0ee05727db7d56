// Package stt defines the speech-to-text boundary and the dispatcher that
// calls it once per active analysis window.
package stt

import (
	"context"
	"errors"
)

// SampleRateHz is the rate every transcriber receives audio at.
const SampleRateHz = 16000

// Provider names.
const (
	ProviderMock    = "mock"
	ProviderGoogle  = "google"
	ProviderWhisper = "whisper"
	ProviderOpenAI  = "openai"
)

// ErrUnavailable is returned by a provider that was not compiled in or has
// no credentials.
var ErrUnavailable = errors.New("stt provider unavailable")

// Transcriber turns one window of 16 kHz mono samples in [-1, 1] into text.
// An empty string with a nil error means no speech was recognized.
// Implementations must be safe for concurrent use by multiple sessions.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Name() string
}

// Closer is implemented by transcribers that hold native or network
// resources.
type Closer interface {
	Close() error
}
