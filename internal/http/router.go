// Package http exposes the REST surface and mounts the streaming endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"profanity-stream-service/internal/models"
	"profanity-stream-service/internal/observability"
	"profanity-stream-service/internal/observability/metrics"
	"profanity-stream-service/internal/service/catalog"
	"profanity-stream-service/internal/store"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200

	maxUsernameLength = 64
	userIDLength      = 8
	registerAttempts  = 3
)

// SensitivityControl reads and replaces the active tier.
type SensitivityControl interface {
	Sensitivity() int
	SetSensitivity(level int) error
}

// Deps are the collaborators behind the routes. Ready may be nil; routes
// whose collaborator is nil are not mounted.
type Deps struct {
	Catalog  SensitivityControl
	Stats    store.StatsReader
	Users    store.UserDirectory
	Sessions http.Handler
	Ready    func(ctx context.Context) error
	Metrics  *metrics.Metrics
	Now      func() time.Time
	// NewUserID defaults to the first eight characters of a random UUID.
	NewUserID func() string
}

type sensitivityBody struct {
	Sensitivity int `json:"sensitivity"`
}

type statsBody struct {
	Today store.Summary `json:"today"`
	Week  store.Summary `json:"week"`
}

type registerRequest struct {
	Username string `json:"username"`
}

type userBody struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type detectionsBody struct {
	Detections []models.DetectionEvent `json:"detections"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.DefaultMetrics
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewUserID == nil {
		d.NewUserID = func() string { return uuid.NewString()[:userIDLength] }
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(d.Metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Streaming endpoint
	if d.Sessions != nil {
		r.Method(http.MethodGet, "/ws", d.Sessions)
	}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sensitivity", d.getSensitivity)
		r.Post("/sensitivity", d.setSensitivity)
		if d.Stats != nil {
			r.Get("/stats", d.getStats)
			r.Get("/detections", d.getDetections)
		}
		if d.Users != nil {
			r.Post("/users", d.registerUser)
		}
	})

	return r
}

func (d Deps) getSensitivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sensitivityBody{Sensitivity: d.Catalog.Sensitivity()})
}

func (d Deps) setSensitivity(w http.ResponseWriter, r *http.Request) {
	var body sensitivityBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	old := d.Catalog.Sensitivity()
	if err := d.Catalog.SetSensitivity(body.Sensitivity); err != nil {
		if errors.Is(err, catalog.ErrInvalidSensitivity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	log.Info().Int("from", old).Int("to", body.Sensitivity).Msg("Sensitivity changed")

	writeJSON(w, http.StatusOK, sensitivityBody{Sensitivity: body.Sensitivity})
}

func (d Deps) registerUser(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		writeError(w, http.StatusBadRequest, "username must be 1 to 64 characters")
		return
	}

	// Short ids can collide; retry with a fresh one.
	for range registerAttempts {
		id := d.NewUserID()
		err := d.Users.RegisterUser(r.Context(), id, username)
		if errors.Is(err, store.ErrUserExists) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to register user")
			writeError(w, http.StatusInternalServerError, "failed to register user")
			return
		}
		log.Info().Str("userId", id).Msg("User registered")
		writeJSON(w, http.StatusCreated, userBody{UserID: id, Username: username})
		return
	}
	writeError(w, http.StatusConflict, "could not allocate a user id")
}

func (d Deps) getStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	today := store.StartOfDay(d.Now())
	weekStart := today.AddDate(0, 0, -7)

	todaySum, err := d.Stats.Summary(r.Context(), userID, today)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load today's stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	weekSum, err := d.Stats.Summary(r.Context(), userID, weekStart)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load weekly stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, statsBody{Today: todaySum, Week: weekSum})
}

func (d Deps) getDetections(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	recent, err := d.Stats.Recent(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load recent detections")
		writeError(w, http.StatusInternalServerError, "failed to load detections")
		return
	}
	if recent == nil {
		recent = []models.DetectionEvent{}
	}
	writeJSON(w, http.StatusOK, detectionsBody{Detections: recent})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
