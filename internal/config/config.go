// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration holds all service configuration.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Detection     DetectionConfig
	STT           STTConfig
	Store         StoreConfig
	Auth          AuthConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds service identity and listener ports.
type ServiceConfig struct {
	Principal   string
	Env         string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// AudioConfig holds windowing and voice-activity settings.
type AudioConfig struct {
	SampleRateHz    int
	WindowSize      int
	MaxBufferLength int
	EnergyThreshold float64
	MaxFrameBytes   int64
}

// DetectionConfig holds pattern catalog settings.
type DetectionConfig struct {
	Sensitivity  int
	PatternsFile string
}

// STTConfig holds speech-to-text settings.
type STTConfig struct {
	Provider           string
	Language           string
	GoogleLanguageCode string
	GoogleModel        string
	Timeout            time.Duration
	WhisperModelPath   string
	WhisperThreads     int
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
}

// StoreConfig holds detection store settings.
type StoreConfig struct {
	Backend      string
	BadgerDir    string
	InMemory     bool
	PostgresDSN  string
	WriteTimeout time.Duration
}

// AuthConfig holds session identity settings.
type AuthConfig struct {
	Mode string
}

// KafkaConfig holds Kafka configuration.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	TracingEnabled bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win.
func Load() *Configuration {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-profanity-stream")
	env := envOrDefault("ENV", "prod")

	defaultFormat := "json"
	if env == "dev" {
		defaultFormat = "console"
	}

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			Env:         env,
			HTTPPort:    envOrDefault("HTTP_PORT", "8000"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Audio: AudioConfig{
			SampleRateHz:    envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			WindowSize:      envOrDefaultInt("AUDIO_WINDOW_SIZE", 24000),
			MaxBufferLength: envOrDefaultInt("AUDIO_MAX_BUFFER_LENGTH", 48000),
			EnergyThreshold: envOrDefaultFloat("VAD_ENERGY_THRESHOLD", 0.02),
			MaxFrameBytes:   envOrDefaultInt64("WS_MAX_FRAME_BYTES", 1<<20),
		},
		Detection: DetectionConfig{
			Sensitivity:  envOrDefaultInt("DETECTION_SENSITIVITY", 2),
			PatternsFile: envOrDefault("DETECTION_PATTERNS_FILE", ""),
		},
		STT: STTConfig{
			Provider:           envOrDefault("STT_PROVIDER", "mock"),
			Language:           envOrDefault("STT_LANGUAGE", "ko"),
			GoogleLanguageCode: envOrDefault("STT_LANGUAGE_CODE", "ko-KR"),
			GoogleModel:        envOrDefault("STT_GOOGLE_MODEL", ""),
			Timeout:            envOrDefaultDuration("STT_TIMEOUT", 0),
			WhisperModelPath:   envOrDefault("WHISPER_MODEL_PATH", ""),
			WhisperThreads:     envOrDefaultInt("WHISPER_THREADS", 0),
			OpenAIAPIKey:       envOrDefault("OPENAI_API_KEY", ""),
			OpenAIModel:        envOrDefault("OPENAI_STT_MODEL", "whisper-1"),
			OpenAIBaseURL:      envOrDefault("OPENAI_BASE_URL", ""),
		},
		Store: StoreConfig{
			Backend:      envOrDefault("STORE_BACKEND", "badger"),
			BadgerDir:    envOrDefault("BADGER_DIR", "data/detections"),
			InMemory:     envOrDefaultBool("BADGER_IN_MEMORY", false),
			PostgresDSN:  envOrDefault("POSTGRES_DSN", ""),
			WriteTimeout: envOrDefaultDuration("STORE_WRITE_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			Mode: envOrDefault("AUTH_MODE", "open"),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   envOrDefaultSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:     envOrDefault("KAFKA_TOPIC_DETECTIONS", "profanity.detections"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:       envOrDefault("LOG_LEVEL", "info"),
			LogFormat:      envOrDefault("LOG_FORMAT", defaultFormat),
			TracingEnabled: envOrDefaultBool("TRACING_ENABLED", false),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Configuration) Validate() error {
	var errs []error

	if c.Audio.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("AUDIO_WINDOW_SIZE must be positive, got %d", c.Audio.WindowSize))
	}
	if c.Audio.MaxBufferLength < c.Audio.WindowSize {
		errs = append(errs, fmt.Errorf("AUDIO_MAX_BUFFER_LENGTH (%d) must be at least AUDIO_WINDOW_SIZE (%d)",
			c.Audio.MaxBufferLength, c.Audio.WindowSize))
	}
	if c.Audio.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("VAD_ENERGY_THRESHOLD must not be negative, got %v", c.Audio.EnergyThreshold))
	}
	if c.Audio.SampleRateHz != 16000 {
		errs = append(errs, fmt.Errorf("AUDIO_SAMPLE_RATE_HZ must be 16000, got %d", c.Audio.SampleRateHz))
	}
	if c.Detection.Sensitivity < 1 || c.Detection.Sensitivity > 3 {
		errs = append(errs, fmt.Errorf("DETECTION_SENSITIVITY must be 1, 2, or 3, got %d", c.Detection.Sensitivity))
	}
	if c.STT.Timeout < 0 {
		errs = append(errs, errors.New("STT_TIMEOUT must not be negative"))
	}

	switch c.STT.Provider {
	case "mock", "google":
	case "whisper":
		if c.STT.WhisperModelPath == "" {
			errs = append(errs, errors.New("WHISPER_MODEL_PATH is required for the whisper provider"))
		}
	case "openai":
		if c.STT.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STT_PROVIDER %q", c.STT.Provider))
	}

	switch c.Store.Backend {
	case "badger":
		if !c.Store.InMemory && c.Store.BadgerDir == "" {
			errs = append(errs, errors.New("BADGER_DIR is required unless BADGER_IN_MEMORY is set"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	switch c.Auth.Mode {
	case "open", "directory":
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
