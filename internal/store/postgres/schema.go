package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUsers = `
CREATE TABLE IF NOT EXISTS users (
    user_id     TEXT         PRIMARY KEY,
    username    TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

const ddlDetections = `
CREATE TABLE IF NOT EXISTS detections (
    id           BIGSERIAL         PRIMARY KEY,
    session_id   TEXT              NOT NULL DEFAULT '',
    user_id      TEXT              NOT NULL,
    text         TEXT              NOT NULL,
    pattern      TEXT              NOT NULL DEFAULT '',
    patterns     TEXT              NOT NULL DEFAULT '',
    confidence   DOUBLE PRECISION  NOT NULL,
    audio_level  DOUBLE PRECISION  NOT NULL,
    sensitivity  SMALLINT          NOT NULL DEFAULT 0,
    timestamp    TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_detections_timestamp
    ON detections (timestamp);

CREATE INDEX IF NOT EXISTS idx_detections_user_timestamp
    ON detections (user_id, timestamp);`

// Migrate creates the tables and indexes if they do not exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlUsers, ddlDetections} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
