// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"profanity-stream-service/internal/pcm"
	"profanity-stream-service/internal/service/stt"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode string
	SampleRateHz int32
	Model        string
}

// DefaultConfig returns default configuration for Korean 16 kHz PCM.
func DefaultConfig() Config {
	return Config{
		LanguageCode: "ko-KR",
		SampleRateHz: stt.SampleRateHz,
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Adapter implements stt.Transcriber with synchronous Recognize calls.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Adapter struct {
	client    *speech.Client
	recognize recognizeFunc
	cfg       Config
}

// New creates a new Google STT transcriber.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client: c,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		cfg: cfg,
	}, nil
}

// Name implements stt.Transcriber.
func (a *Adapter) Name() string { return stt.ProviderGoogle }

// Transcribe implements stt.Transcriber. Results are joined with spaces.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	resp, err := a.recognize(ctx, a.request(samples))
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// request always sends LINEAR16, the only encoding pcm.Encode produces.
func (a *Adapter) request(samples []float32) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: a.cfg.SampleRateHz,
			LanguageCode:    a.cfg.LanguageCode,
			Model:           a.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm.Encode(samples)},
		},
	}
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
