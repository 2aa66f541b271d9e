package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/database"
	"github.com/rl-arena/duel-arena-backend/pkg/logger"
)

const ratingConfigName = "rating"

type ConfigRepository struct {
	db *database.DB
}

func NewConfigRepository(db *database.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// LoadRatingConfig DB 에 저장된 레이팅 상수로 defaults 를 덮어쓴다.
// 행이 없으면 defaults 그대로, 저장된 JSON 에 없는 필드도 defaults 유지
func (r *ConfigRepository) LoadRatingConfig(ctx context.Context, defaults models.RatingConfig) (models.RatingConfig, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM rating_config WHERE name = $1`, ratingConfigName,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("failed to load rating config: %w", err)
	}

	return mergeRatingConfig(defaults, raw)
}

// SaveRatingConfig 레이팅 상수 저장
func (r *ConfigRepository) SaveRatingConfig(ctx context.Context, cfg models.RatingConfig) error {
	value, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode rating config: %w", err)
	}

	query := `
		INSERT INTO rating_config (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, ratingConfigName, value); err != nil {
		return fmt.Errorf("failed to save rating config: %w", err)
	}
	return nil
}

func mergeRatingConfig(defaults models.RatingConfig, raw []byte) (models.RatingConfig, error) {
	merged := defaults
	merged.Leagues = nil
	if err := json.Unmarshal(raw, &merged); err != nil {
		return defaults, fmt.Errorf("failed to decode rating config: %w", err)
	}
	if !models.ValidLeagues(merged.Leagues) {
		if len(merged.Leagues) > 0 {
			logger.Warn("Ignoring stored leagues, floors must be strictly ascending", "leagues", merged.Leagues)
		}
		merged.Leagues = defaults.Leagues
	}
	return merged, nil
}
