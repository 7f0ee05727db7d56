//go:build whisper

// Package whisper provides a local whisper.cpp transcriber. It needs the
// whisper.cpp static library and headers at link time (LIBRARY_PATH and
// C_INCLUDE_PATH) and is compiled only with the "whisper" build tag.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"profanity-stream-service/internal/service/stt"
)

// Adapter implements stt.Transcriber. The model is shared; each call gets
// its own whisper context so sessions can transcribe concurrently.
type Adapter struct {
	model whisperlib.Model
	cfg   Config
}

// New loads the model at cfg.ModelPath.
func New(cfg Config) (*Adapter, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("whisper: empty model path")
	}
	m, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model: %w", err)
	}
	return &Adapter{model: m, cfg: cfg}, nil
}

// Name implements stt.Transcriber.
func (a *Adapter) Name() string { return stt.ProviderWhisper }

// Transcribe implements stt.Transcriber. whisper.cpp cannot be interrupted
// mid-inference, so ctx is only checked before the call.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := a.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(a.cfg.language()); err != nil {
		return "", fmt.Errorf("whisper: set language: %w", err)
	}
	if a.cfg.Threads > 0 {
		wctx.SetThreads(uint(a.cfg.Threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		sb.WriteString(segment.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close releases the model.
func (a *Adapter) Close() error {
	if a.model == nil {
		return nil
	}
	return a.model.Close()
}
