package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"profanity-stream-service/internal/models"
	"profanity-stream-service/internal/store"
	"profanity-stream-service/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if POSTGRES_TEST_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS detections, users`); err != nil {
		t.Fatalf("drop tables: %v", err)
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func detection(user string, ts time.Time, patterns ...string) models.DetectionEvent {
	return models.DetectionEvent{
		SessionID:   "sess",
		UserID:      user,
		Text:        "text",
		Pattern:     patterns[0],
		Patterns:    patterns,
		Confidence:  0.8,
		Energy:      0.05,
		Sensitivity: 2,
		Timestamp:   ts,
	}
}

func TestNewStore_BadDSN(t *testing.T) {
	if _, err := postgres.NewStore(context.Background(), "::not a dsn::"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	newTestStore(t)
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Errorf("expected second migration to succeed, got %v", err)
	}
}

func TestRecordSummaryRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Record(ctx, detection("alice", now.Add(-time.Minute), "병신", "지랄"))
	_ = s.Record(ctx, detection("alice", now.Add(-10*24*time.Hour), "짜증"))
	_ = s.Record(ctx, detection("bob", now, "짜증"))

	sum, err := s.Summary(ctx, "", now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Count != 2 || sum.AvgConfidence != 0.8 {
		t.Errorf("expected 2 detections at 0.8, got %+v", sum)
	}

	recent, err := s.Recent(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 detections for alice, got %d", len(recent))
	}
	if len(recent[0].Patterns) != 2 || recent[0].Patterns[1] != "지랄" {
		t.Errorf("expected comma-joined patterns to round trip, got %v", recent[0].Patterns)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if ok, _ := s.UserExists(ctx, "ab12cd34"); ok {
		t.Error("expected unknown user")
	}
	if err := s.RegisterUser(ctx, "ab12cd34", "alice"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if ok, _ := s.UserExists(ctx, "ab12cd34"); !ok {
		t.Error("expected registered user")
	}
	if err := s.RegisterUser(ctx, "ab12cd34", "alice"); !errors.Is(err, store.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}
