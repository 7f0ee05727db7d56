// Package store defines the persistence boundary for detections and the
// user directory, plus helpers shared by the backends.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"profanity-stream-service/internal/models"
)

// ErrUserExists is returned when registering an id that is already taken.
var ErrUserExists = errors.New("user already exists")

// Recorder durably stores detection events.
type Recorder interface {
	Record(ctx context.Context, ev models.DetectionEvent) error
}

// StatsReader aggregates stored detections.
type StatsReader interface {
	// Summary covers detections at or after since. An empty userID covers
	// every user.
	Summary(ctx context.Context, userID string, since time.Time) (Summary, error)
	// Recent returns up to limit detections, newest first. An empty userID
	// covers every user.
	Recent(ctx context.Context, userID string, limit int) ([]models.DetectionEvent, error)
}

// UserDirectory answers identity lookups.
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	RegisterUser(ctx context.Context, userID, username string) error
}

// Store is implemented by every backend.
type Store interface {
	Recorder
	StatsReader
	UserDirectory
	Backend() string
	Ping(ctx context.Context) error
	Close() error
}

// Summary is a detection count with the average confidence.
type Summary struct {
	Count         int64   `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// RoundConfidence rounds to two decimals.
func RoundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}

// Tee records to every recorder in order and joins their errors. A failing
// recorder does not stop the others.
type Tee []Recorder

// Record implements Recorder.
func (t Tee) Record(ctx context.Context, ev models.DetectionEvent) error {
	var errs []error
	for _, r := range t {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
