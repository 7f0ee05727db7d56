// Package mock provides a scripted transcriber for running the pipeline
// without a speech model or cloud credentials.
package mock

import (
	"context"
	"sync"
	"time"

	"profanity-stream-service/internal/service/stt"
)

// Utterance is one scripted transcription result.
type Utterance struct {
	Text string
	Err  error
}

// DefaultUtterances cycles through clean speech, profanity at each tier and
// an empty result.
var DefaultUtterances = []Utterance{
	{Text: "오늘 날씨 좋다"},
	{Text: "아 진짜 짜증나네"},
	{Text: "이 병신 같은 게임"},
	{Text: ""},
	{Text: "꺼져 좀"},
	{Text: "회의는 세 시에 시작합니다"},
}

// Adapter implements stt.Transcriber by returning scripted utterances in
// order, wrapping around at the end.
type Adapter struct {
	mu         sync.Mutex
	utterances []Utterance
	next       int
	latency    time.Duration
	calls      int
	closed     bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithUtterances replaces the script.
func WithUtterances(u ...Utterance) Option {
	return func(a *Adapter) { a.utterances = u }
}

// WithLatency simulates model processing time.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// New creates a new mock transcriber.
func New(opts ...Option) *Adapter {
	a := &Adapter{utterances: DefaultUtterances}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements stt.Transcriber.
func (a *Adapter) Name() string { return stt.ProviderMock }

// Transcribe implements stt.Transcriber.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return "", stt.ErrUnavailable
	}
	a.calls++
	if len(a.utterances) == 0 {
		return "", nil
	}
	u := a.utterances[a.next%len(a.utterances)]
	a.next++
	return u.Text, u.Err
}

// Calls returns how many windows were transcribed.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Close makes further calls fail with stt.ErrUnavailable. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
