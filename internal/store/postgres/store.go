// Package postgres implements the store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"profanity-stream-service/internal/models"
	"profanity-stream-service/internal/store"
)

const backendName = "postgres"

// uniqueViolation is the SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

var _ store.Store = (*Store)(nil)

// Store is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings and runs Migrate.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Backend implements store.Store.
func (s *Store) Backend() string { return backendName }

// Record inserts ev with a single statement. Patterns are stored
// comma-joined.
func (s *Store) Record(ctx context.Context, ev models.DetectionEvent) error {
	const q = `
INSERT INTO detections
    (session_id, user_id, text, pattern, patterns, confidence, audio_level, sensitivity, timestamp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		ev.SessionID,
		ev.UserID,
		ev.Text,
		ev.Pattern,
		strings.Join(ev.Patterns, ","),
		ev.Confidence,
		ev.Energy,
		ev.Sensitivity,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres store: insert detection: %w", err)
	}
	return nil
}

// Summary implements store.StatsReader.
func (s *Store) Summary(ctx context.Context, userID string, since time.Time) (store.Summary, error) {
	q := `SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM detections WHERE timestamp >= $1`
	args := []any{since}
	if userID != "" {
		q += ` AND user_id = $2`
		args = append(args, userID)
	}

	var sum store.Summary
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&sum.Count, &sum.AvgConfidence); err != nil {
		return store.Summary{}, fmt.Errorf("postgres store: summary: %w", err)
	}
	sum.AvgConfidence = store.RoundConfidence(sum.AvgConfidence)
	return sum, nil
}

// Recent implements store.StatsReader.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]models.DetectionEvent, error) {
	const q = `
SELECT session_id, user_id, text, pattern, patterns, confidence, audio_level, sensitivity, timestamp
FROM detections
WHERE $1 = '' OR user_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2`

	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent detections: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanDetection)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan detections: %w", err)
	}
	return events, nil
}

func scanDetection(row pgx.CollectableRow) (models.DetectionEvent, error) {
	var (
		ev          models.DetectionEvent
		patterns    string
		sensitivity int16
	)
	err := row.Scan(&ev.SessionID, &ev.UserID, &ev.Text, &ev.Pattern, &patterns,
		&ev.Confidence, &ev.Energy, &sensitivity, &ev.Timestamp)
	if err != nil {
		return models.DetectionEvent{}, err
	}
	ev.EventType = models.DetectionEventType
	ev.Sensitivity = int(sensitivity)
	ev.Patterns = []string{}
	if patterns != "" {
		ev.Patterns = strings.Split(patterns, ",")
	}
	return ev, nil
}

// UserExists implements store.UserDirectory.
func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres store: lookup user: %w", err)
	}
	return exists, nil
}

// RegisterUser implements store.UserDirectory.
func (s *Store) RegisterUser(ctx context.Context, userID, username string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (user_id, username) VALUES ($1, $2)`, userID, username)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("postgres store: register user: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
