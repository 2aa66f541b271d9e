package repository

import (
	"context"
	"fmt"

	"github.com/rl-arena/duel-arena-backend/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id             TEXT PRIMARY KEY,
		username       TEXT NOT NULL UNIQUE,
		display_name   TEXT NOT NULL DEFAULT '',
		password_hash  TEXT NOT NULL,
		ban_reason     TEXT,
		ban_expires_at TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS player_skills (
		player_id  TEXT PRIMARY KEY,
		score      DOUBLE PRECISION NOT NULL,
		matches    INTEGER NOT NULL DEFAULT 0,
		k_factor   DOUBLE PRECISION NOT NULL,
		challenger BOOLEAN NOT NULL DEFAULT FALSE,
		wins       INTEGER NOT NULL DEFAULT 0,
		draws      INTEGER NOT NULL DEFAULT 0,
		defeats    INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE player_skills
		ADD COLUMN IF NOT EXISTS wins    INTEGER NOT NULL DEFAULT 0,
		ADD COLUMN IF NOT EXISTS draws   INTEGER NOT NULL DEFAULT 0,
		ADD COLUMN IF NOT EXISTS defeats INTEGER NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_player_skills_rank ON player_skills (score DESC, matches DESC)`,
	`CREATE TABLE IF NOT EXISTS match_reports (
		id              TEXT PRIMARY KEY,
		order_player_id TEXT NOT NULL,
		chaos_player_id TEXT NOT NULL,
		reason          TEXT NOT NULL,
		rated           BOOLEAN NOT NULL,
		result          JSONB NOT NULL,
		events          JSONB NOT NULL,
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_reports_order ON match_reports (order_player_id, finished_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_match_reports_chaos ON match_reports (chaos_player_id, finished_at DESC)`,
	`CREATE TABLE IF NOT EXISTS rating_config (
		name       TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate 테이블이 없으면 생성
func Migrate(ctx context.Context, db *database.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
