// Package app wires configuration into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	grpcapi "profanity-stream-service/internal/api/grpc"
	"profanity-stream-service/internal/api/ws"
	"profanity-stream-service/internal/auth"
	"profanity-stream-service/internal/config"
	"profanity-stream-service/internal/events"
	httpapi "profanity-stream-service/internal/http"
	"profanity-stream-service/internal/observability"
	"profanity-stream-service/internal/observability/logging"
	"profanity-stream-service/internal/observability/metrics"
	"profanity-stream-service/internal/schema"
	"profanity-stream-service/internal/service/catalog"
	"profanity-stream-service/internal/service/session"
	"profanity-stream-service/internal/service/stt"
	"profanity-stream-service/internal/service/stt/google"
	"profanity-stream-service/internal/service/stt/mock"
	sttopenai "profanity-stream-service/internal/service/stt/openai"
	"profanity-stream-service/internal/service/stt/whisper"
	"profanity-stream-service/internal/service/vad"
	"profanity-stream-service/internal/store"
	badgerstore "profanity-stream-service/internal/store/badger"
	"profanity-stream-service/internal/store/postgres"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Metrics       *metrics.Metrics
	Catalog       *catalog.Catalog
	Store         store.Store
	Publisher     *events.Publisher
	Transcriber   stt.Transcriber
	Sessions      *session.Controller
	WebSocket     *ws.Handler
	Router        http.Handler
	GRPC          *grpcapi.Server
	Observability *observability.Server

	shutdownTracing func(context.Context) error
}

// New constructs a new Application from the provided configuration. Every
// resource opened before a failure is released before New returns.
func New(ctx context.Context, cfg *config.Configuration) (_ *Application, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.InitTracing(observability.TracingConfig{ServiceName: cfg.Service.Principal})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	if a.Catalog, err = newCatalog(cfg.Detection); err != nil {
		return nil, err
	}
	a.Catalog.OnChange(a.Metrics.SetSensitivity)

	if a.Store, err = newStore(ctx, cfg.Store); err != nil {
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	})

	if a.Transcriber, err = newTranscriber(ctx, cfg.STT); err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(cfg.Auth.Mode, a.Store)
	if err != nil {
		return nil, err
	}

	a.Sessions, err = session.NewController(session.Deps{
		Catalog:     a.Catalog,
		Gate:        vad.Gate{Threshold: cfg.Audio.EnergyThreshold},
		Transcriber: stt.NewDispatcher(a.Transcriber, stt.WithTimeout(cfg.STT.Timeout), stt.WithMetrics(a.Metrics)),
		Recorder:    store.Tee{a.Store, a.Publisher},
		Verifier:    verifier,
		Validator:   schema.New(),
		Metrics:     a.Metrics,
	}, session.Config{
		WindowSize:   cfg.Audio.WindowSize,
		MaxLength:    cfg.Audio.MaxBufferLength,
		WriteTimeout: cfg.Store.WriteTimeout,
		Backend:      a.Store.Backend(),
	})
	if err != nil {
		return nil, err
	}

	wsCfg := ws.DefaultConfig()
	wsCfg.MaxMessageBytes = cfg.Audio.MaxFrameBytes
	a.WebSocket = ws.NewHandler(a.Sessions, wsCfg)

	a.Router = httpapi.NewRouter(httpapi.Deps{
		Catalog:  a.Catalog,
		Stats:    a.Store,
		Users:    a.Store,
		Sessions: a.WebSocket,
		Ready:    a.Store.Ping,
		Metrics:  a.Metrics,
	})
	a.GRPC = grpcapi.NewServer(a.Metrics)
	a.Observability = observability.NewServer(":"+cfg.Service.MetricsPort, nil, a.Store.Ping)

	appLogger.Info().
		Str("sttProvider", a.Transcriber.Name()).
		Str("store", a.Store.Backend()).
		Bool("kafka", a.Publisher.Enabled()).
		Str("authMode", cfg.Auth.Mode).
		Int("sensitivity", a.Catalog.Sensitivity()).
		Msg("Profanity stream service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	a.Logger = logging.Init(logging.Config{
		Level:   a.Cfg.Observability.LogLevel,
		Format:  a.Cfg.Observability.LogFormat,
		Service: a.Cfg.Service.Principal,
	}).With().Str("component", "application").Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

func newCatalog(cfg config.DetectionConfig) (*catalog.Catalog, error) {
	tiers := catalog.DefaultTiers()
	if cfg.PatternsFile != "" {
		loaded, err := catalog.LoadTiers(cfg.PatternsFile)
		if err != nil {
			return nil, err
		}
		tiers = loaded
	}
	return catalog.New(tiers, cfg.Sensitivity)
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := badgerstore.Open(badgerstore.Options{Dir: cfg.BadgerDir, InMemory: cfg.InMemory})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func newTranscriber(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, error) {
	switch cfg.Provider {
	case stt.ProviderGoogle:
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.GoogleLanguageCode
		gc.Model = cfg.GoogleModel
		t, err := google.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		return t, nil
	case stt.ProviderWhisper:
		t, err := whisper.New(whisper.Config{
			ModelPath: cfg.WhisperModelPath,
			Language:  cfg.Language,
			Threads:   cfg.WhisperThreads,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case stt.ProviderOpenAI:
		t, err := sttopenai.New(sttopenai.Config{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			Language: cfg.Language,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return mock.New(), nil
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Profanity stream service starting")

	return nil
}

// Shutdown closes open sessions, then releases the transcriber, publisher,
// store and tracer provider. It is safe on a partially built Application.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()
	shutdownLogger.Info().Msg("Profanity stream service shutting down")

	var errs []error
	if a.WebSocket != nil {
		if err := a.WebSocket.Shutdown(ctx); err != nil && !errors.Is(err, ws.ErrShuttingDown) {
			errs = append(errs, fmt.Errorf("websocket: %w", err))
		}
	}
	if c, ok := a.Transcriber.(stt.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transcriber: %w", err))
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
