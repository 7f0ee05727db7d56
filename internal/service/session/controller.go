// Package session runs one streaming connection: it verifies the caller,
// windows the incoming audio and answers every completed window with exactly
// one result message.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"profanity-stream-service/internal/auth"
	"profanity-stream-service/internal/models"
	"profanity-stream-service/internal/observability/logging"
	"profanity-stream-service/internal/observability/metrics"
	"profanity-stream-service/internal/pcm"
	"profanity-stream-service/internal/schema"
	"profanity-stream-service/internal/service/catalog"
	"profanity-stream-service/internal/service/matcher"
	"profanity-stream-service/internal/service/vad"
	"profanity-stream-service/internal/service/window"
	"profanity-stream-service/internal/store"
)

const tracerName = "profanity-stream-service/session"

// Client-facing error texts.
const (
	msgAuthFailed    = "authentication failed"
	msgInternalError = "internal error"
)

var (
	// ErrMalformedFrame is returned for binary frames that are not whole
	// 16-bit samples.
	ErrMalformedFrame = errors.New("malformed audio frame")
	// ErrWriteFailed wraps transport write errors. No further message is
	// attempted after one.
	ErrWriteFailed = errors.New("write failed")
	// ErrPipelinePanic wraps a recovered panic from window analysis.
	ErrPipelinePanic = errors.New("pipeline panic")
)

// Conn is the subset of *websocket.Conn used by a session.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Transcriber turns a window into text. Failures read as "".
type Transcriber interface {
	Transcribe(ctx context.Context, window []float32) string
}

// Config holds per-session tuning.
type Config struct {
	WindowSize   int
	MaxLength    int
	WriteTimeout time.Duration
	// Backend labels recorder metrics.
	Backend string
}

// DefaultConfig returns the 1.5 s window with a 3 s cap at 16 kHz.
func DefaultConfig() Config {
	return Config{
		WindowSize:   window.DefaultWindowSize,
		MaxLength:    window.DefaultMaxLength,
		WriteTimeout: 5 * time.Second,
		Backend:      "store",
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalog     *catalog.Catalog
	Gate        vad.Gate
	Transcriber Transcriber
	Recorder    store.Recorder
	Verifier    auth.Verifier
	Validator   *schema.Validator
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

// Controller serves sessions. It holds no per-session state and is safe for
// concurrent use.
type Controller struct {
	deps Deps
	cfg  Config
}

// NewController creates a Controller. Nil optional deps get defaults.
func NewController(deps Deps, cfg Config) (*Controller, error) {
	if deps.Catalog == nil || deps.Transcriber == nil || deps.Recorder == nil || deps.Verifier == nil {
		return nil, errors.New("session: catalog, transcriber, recorder and verifier are required")
	}
	if deps.Validator == nil {
		deps.Validator = schema.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Gate.Threshold == 0 {
		deps.Gate = vad.DefaultGate()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = window.DefaultWindowSize
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = window.DefaultMaxLength
	}
	return &Controller{deps: deps, cfg: cfg}, nil
}

// DecodePCM16 converts a little-endian 16-bit frame to samples in [-1, 1).
func DecodePCM16(frame []byte) ([]float32, error) {
	samples, err := pcm.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(frame))
	}
	return samples, nil
}

// Serve runs a session on conn until the peer disconnects or a fatal error
// occurs. conn is always closed on return. A nil error means the peer ended
// the session.
func (c *Controller) Serve(ctx context.Context, conn Conn, userID string) error {
	s := &session{
		Controller: c,
		conn:       conn,
		userID:     userID,
		lifecycle:  NewLifecycle(uuid.NewString()),
	}
	s.logger = logging.WithSession(s.lifecycle.SessionID(), userID)
	defer s.close()

	if err := c.deps.Verifier.Verify(ctx, userID); err != nil {
		return s.reject(err)
	}
	if err := s.lifecycle.Authenticate(); err != nil {
		return err
	}
	return s.stream(ctx)
}

type session struct {
	*Controller
	conn      Conn
	userID    string
	lifecycle *Lifecycle
	buffer    *window.Buffer
	logger    zerolog.Logger
	started   time.Time
	windows   int
}

func (s *session) reject(cause error) error {
	_ = s.lifecycle.Reject()

	reason := "lookup_error"
	switch {
	case errors.Is(cause, auth.ErrMissingIdentity):
		reason = "missing"
	case errors.Is(cause, auth.ErrUnknownIdentity):
		reason = "unknown"
	}
	s.deps.Metrics.RecordSessionRejected(reason)
	s.logger.Warn().Err(cause).Str("reason", reason).Msg("Session rejected")

	if err := s.conn.WriteJSON(models.Error(msgAuthFailed)); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send rejection")
	}
	return cause
}

func (s *session) stream(ctx context.Context) error {
	if err := s.lifecycle.StartStreaming(); err != nil {
		return err
	}
	s.buffer = window.NewBuffer(s.cfg.WindowSize, s.cfg.MaxLength)
	s.started = time.Now()
	s.deps.Metrics.RecordSessionStart()
	s.logger.Info().Msg("Session streaming")

	for {
		mt, data, rerr := s.conn.ReadMessage()
		if rerr != nil {
			if errors.Is(rerr, websocket.ErrReadLimit) {
				err := fmt.Errorf("%w: frame exceeds the size limit", ErrMalformedFrame)
				s.fail(err)
				return err
			}
			if websocket.IsUnexpectedCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug().Err(rerr).Msg("Connection dropped")
			}
			return nil
		}

		var err error
		switch mt {
		case websocket.BinaryMessage:
			err = s.handleAudio(ctx, data)
		case websocket.TextMessage:
			err = s.handleText(data)
		}
		if err != nil {
			s.fail(err)
			return err
		}
	}
}

func (s *session) fail(err error) {
	reason := "internal"
	switch {
	case errors.Is(err, ErrWriteFailed):
		s.deps.Metrics.RecordSessionFailed("write")
		s.logger.Warn().Err(err).Msg("Closing session after write failure")
		return
	case errors.Is(err, ErrMalformedFrame):
		reason = "malformed_frame"
	case errors.Is(err, ErrPipelinePanic):
		reason = "panic"
	}
	s.deps.Metrics.RecordSessionFailed(reason)
	s.logger.Error().Err(err).Str("reason", reason).Msg("Closing session after error")

	msg := msgInternalError
	if errors.Is(err, ErrMalformedFrame) {
		msg = err.Error()
	}
	if werr := s.conn.WriteJSON(models.Error(msg)); werr != nil {
		s.logger.Debug().Err(werr).Msg("Failed to send error")
	}
}

func (s *session) close() {
	if !s.lifecycle.Close() {
		return
	}
	if s.buffer != nil {
		s.deps.Metrics.RecordSessionEnd(time.Since(s.started).Seconds())
		s.logger.Info().
			Int("windows", s.windows).
			Int64("samples", s.buffer.Appended()).
			Dur("duration", time.Since(s.started)).
			Msg("Session closed")
		s.buffer = nil
	}
	_ = s.conn.Close()
}

func (s *session) handleText(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "ping" {
		s.deps.Metrics.RecordControlMessage("ping")
		return s.write(models.Pong())
	}
	s.deps.Metrics.RecordControlMessage("unsupported")
	return s.write(models.Unsupported("only binary PCM audio and \"ping\" are accepted"))
}

func (s *session) handleAudio(ctx context.Context, frame []byte) error {
	samples, err := DecodePCM16(frame)
	if err != nil {
		return err
	}
	s.deps.Metrics.RecordAudioReceived(len(frame))
	s.buffer.Append(samples)

	for {
		w, ok := s.buffer.TryExtract()
		if !ok {
			return nil
		}
		msg, aerr := s.analyzeSafe(ctx, w)
		if aerr != nil {
			return aerr
		}
		if err := s.write(msg); err != nil {
			return err
		}
	}
}

func (s *session) analyzeSafe(ctx context.Context, w []float32) (msg any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
	}()
	return s.analyze(ctx, w), nil
}

// analyze runs gate, transcription, matching and persistence for one window
// and returns the message to send.
func (s *session) analyze(ctx context.Context, w []float32) any {
	s.windows++
	energy := s.deps.Gate.Energy(w)
	if !s.deps.Gate.IsActive(energy) {
		s.deps.Metrics.RecordWindow(metrics.OutcomeNoActivity, energy)
		return models.NoActivityResult{Energy: energy, Message: models.ReasonNoVoiceActivity}
	}

	text := s.deps.Transcriber.Transcribe(ctx, w)
	if strings.TrimSpace(text) == "" {
		s.deps.Metrics.RecordWindow(metrics.OutcomeNoSpeech, energy)
		return models.NoActivityResult{Energy: energy, Message: models.ReasonNoSpeech}
	}

	level, patterns := s.deps.Catalog.Snapshot()
	res := matcher.Detect(text, patterns)
	now := time.Now()
	if !res.Detected {
		s.deps.Metrics.RecordWindow(metrics.OutcomeClean, energy)
		return models.CleanResult{Text: text, Energy: energy, Timestamp: now}
	}

	ev := models.DetectionEvent{
		EventType:   models.DetectionEventType,
		SessionID:   s.lifecycle.SessionID(),
		UserID:      s.userID,
		Text:        text,
		Pattern:     res.FirstMatch,
		Patterns:    res.Matches,
		Confidence:  res.Confidence,
		Energy:      energy,
		Sensitivity: level,
		Timestamp:   now,
	}
	s.deps.Metrics.RecordWindow(metrics.OutcomeDetected, energy)
	s.deps.Metrics.RecordDetection(ev.Pattern)
	s.logger.Info().
		Str("pattern", ev.Pattern).
		Strs("patterns", ev.Patterns).
		Float64("energy", energy).
		Msg("Profanity detected")

	s.persist(ctx, ev)
	return models.NewDetectedResult(ev)
}

// persist records ev. Failures are logged and counted only.
func (s *session) persist(ctx context.Context, ev models.DetectionEvent) {
	if err := s.deps.Validator.Validate(ev); err != nil {
		s.deps.Metrics.RecordRecorderWrite(s.cfg.Backend, err, 0)
		s.logger.Error().Err(err).Msg("Dropping invalid detection event")
		return
	}

	// Detach from the session so a closing connection does not abort the write.
	ctx = context.WithoutCancel(ctx)
	if s.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
	}
	ctx, span := s.deps.Tracer.Start(ctx, "recorder.record", trace.WithAttributes(
		attribute.String("recorder.backend", s.cfg.Backend),
		attribute.String("detection.pattern", ev.Pattern),
	))
	defer span.End()

	start := time.Now()
	err := s.deps.Recorder.Record(ctx, ev)
	s.deps.Metrics.RecordRecorderWrite(s.cfg.Backend, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Msg("Failed to record detection")
	}
}

func (s *session) write(v any) error {
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
