// Package openai provides a transcriber backed by the OpenAI audio
// transcription endpoint (or any compatible server).
package openai

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"profanity-stream-service/internal/service/stt"
)

// Config holds OpenAI transcription configuration.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// DefaultConfig returns whisper-1 in Korean.
func DefaultConfig() Config {
	return Config{
		Model:    string(openai.AudioModelWhisper1),
		Language: "ko",
	}
}

// Adapter implements stt.Transcriber. The client is safe for concurrent use.
type Adapter struct {
	client openai.Client
	cfg    Config
}

// New creates a new OpenAI transcriber.
func New(cfg Config, opts ...option.RequestOption) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &Adapter{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
	}, nil
}

// Name implements stt.Transcriber.
func (a *Adapter) Name() string { return stt.ProviderOpenAI }

// Transcribe implements stt.Transcriber by uploading the window as a WAV file.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	wav := encodeWAV(samples, stt.SampleRateHz)

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "window.wav", "audio/wav"),
		Model: openai.AudioModel(a.cfg.Model),
	}
	if a.cfg.Language != "" {
		params.Language = openai.String(a.cfg.Language)
	}

	resp, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
