//go:build !whisper

package whisper

import (
	"context"
	"fmt"

	"profanity-stream-service/internal/service/stt"
)

// Adapter is a placeholder used when the binary is built without the
// "whisper" tag.
type Adapter struct{}

// New always fails; rebuild with -tags whisper to enable whisper.cpp.
func New(cfg Config) (*Adapter, error) {
	return nil, fmt.Errorf("whisper: built without the whisper tag: %w", stt.ErrUnavailable)
}

// Name implements stt.Transcriber.
func (a *Adapter) Name() string { return stt.ProviderWhisper }

// Transcribe implements stt.Transcriber.
func (a *Adapter) Transcribe(context.Context, []float32) (string, error) {
	return "", stt.ErrUnavailable
}

// Close is a no-op.
func (a *Adapter) Close() error { return nil }
