package stt

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"profanity-stream-service/internal/observability/metrics"
)

const tracerName = "profanity-stream-service/stt"

// Dispatcher wraps a Transcriber so that failures read as silence.
type Dispatcher struct {
	transcriber Transcriber
	timeout     time.Duration
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each call. Zero means no bound.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithMetrics overrides metrics.DefaultMetrics.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(disp *Dispatcher) { disp.tracer = t }
}

// NewDispatcher creates a Dispatcher around t.
func NewDispatcher(t Transcriber, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transcriber: t,
		metrics:     metrics.DefaultMetrics,
		tracer:      otel.Tracer(tracerName),
		logger:      log.With().Str("component", "stt-dispatcher").Str("sttProvider", t.Name()).Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transcribe returns the recognized text for window, or "" when the
// transcriber fails. The call blocks the calling session until it returns.
func (d *Dispatcher) Transcribe(ctx context.Context, window []float32) string {
	provider := d.transcriber.Name()
	ctx, span := d.tracer.Start(ctx, "stt.transcribe", trace.WithAttributes(
		attribute.String("stt.provider", provider),
		attribute.Int("stt.samples", len(window)),
	))
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := d.transcriber.Transcribe(ctx, PeakNormalize(window))
	d.metrics.RecordSTT(provider, time.Since(start).Seconds())

	if err != nil {
		errType := "provider"
		if errors.Is(err, context.DeadlineExceeded) {
			errType = "timeout"
		}
		d.metrics.RecordSTTError(provider, errType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn().Err(err).Str("errorType", errType).Msg("Transcription failed, treating window as silence")
		return ""
	}

	text = strings.TrimSpace(text)
	span.SetAttributes(attribute.Int("stt.text_length", len(text)))
	return text
}

// PeakNormalize divides by the peak magnitude when any sample falls outside
// [-1, 1]. Otherwise window is returned as is. The input is never modified.
func PeakNormalize(window []float32) []float32 {
	var peak float64
	for _, s := range window {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak <= 1.0 {
		return window
	}
	out := make([]float32, len(window))
	for i, s := range window {
		out[i] = float32(float64(s) / peak)
	}
	return out
}
