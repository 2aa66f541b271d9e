package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/database"
)

type SkillRepository struct {
	db *database.DB
}

func NewSkillRepository(db *database.DB) *SkillRepository {
	return &SkillRepository{db: db}
}

// LoadSkill 플레이어 레이팅 조회. 기록이 없으면 found=false
func (r *SkillRepository) LoadSkill(ctx context.Context, playerID string) (models.SkillRecord, bool, error) {
	query := `
		SELECT score, matches, k_factor, challenger, wins, draws, defeats
		FROM player_skills
		WHERE player_id = $1
	`

	var skill models.SkillRecord
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&skill.Score,
		&skill.Matches,
		&skill.KFactor,
		&skill.Challenger,
		&skill.Wins,
		&skill.Draws,
		&skill.Defeats,
	)

	if err == sql.ErrNoRows {
		return models.SkillRecord{}, false, nil
	}

	if err != nil {
		return models.SkillRecord{}, false, fmt.Errorf("failed to load skill: %w", err)
	}

	return skill, true, nil
}

// SaveSkill 레이팅 저장.
// 매치 수가 늘어난 경우에만 덮어써서 재시도된 정산이 새 결과를 되돌리지 않는다.
// challenger 는 배치 작업 소유라 건드리지 않는다.
func (r *SkillRepository) SaveSkill(ctx context.Context, playerID string, skill models.SkillRecord) error {
	query := `
		INSERT INTO player_skills (player_id, score, matches, k_factor, wins, draws, defeats, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (player_id) DO UPDATE
		SET score = EXCLUDED.score,
		    matches = EXCLUDED.matches,
		    k_factor = EXCLUDED.k_factor,
		    wins = EXCLUDED.wins,
		    draws = EXCLUDED.draws,
		    defeats = EXCLUDED.defeats,
		    updated_at = NOW()
		WHERE player_skills.matches < EXCLUDED.matches
	`

	_, err := r.db.ExecContext(ctx, query, playerID,
		skill.Score, skill.Matches, skill.KFactor, skill.Wins, skill.Draws, skill.Defeats)
	if err != nil {
		return fmt.Errorf("failed to save skill: %w", err)
	}

	return nil
}

// ListLeaderboard 순위표 (점수, 매치 수 내림차순)
func (r *SkillRepository) ListLeaderboard(ctx context.Context, limit, offset int) ([]models.PlayerSkill, error) {
	query := `
		SELECT player_id, score, matches, k_factor, challenger, wins, draws, defeats, updated_at
		FROM player_skills
		ORDER BY score DESC, matches DESC, player_id
		LIMIT $1 OFFSET $2
	`
	return r.query(ctx, query, limit, offset)
}

// ListTopTier 점수가 floor 이상인 플레이어 전부
func (r *SkillRepository) ListTopTier(ctx context.Context, floor float64) ([]models.PlayerSkill, error) {
	query := `
		SELECT player_id, score, matches, k_factor, challenger, wins, draws, defeats, updated_at
		FROM player_skills
		WHERE score >= $1
	`
	return r.query(ctx, query, floor)
}

// SetChallengers 주어진 플레이어만 챌린저로, 나머지는 해제
func (r *SkillRepository) SetChallengers(ctx context.Context, playerIDs []string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE player_skills SET challenger = FALSE
			WHERE challenger AND NOT (player_id = ANY($1))
		`, pq.Array(playerIDs)); err != nil {
			return fmt.Errorf("failed to clear challengers: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE player_skills SET challenger = TRUE
			WHERE NOT challenger AND player_id = ANY($1)
		`, pq.Array(playerIDs)); err != nil {
			return fmt.Errorf("failed to set challengers: %w", err)
		}
		return nil
	})
}

func (r *SkillRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.PlayerSkill, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	skills := []models.PlayerSkill{}
	for rows.Next() {
		var ps models.PlayerSkill
		if err := rows.Scan(
			&ps.PlayerID,
			&ps.Skill.Score,
			&ps.Skill.Matches,
			&ps.Skill.KFactor,
			&ps.Skill.Challenger,
			&ps.Skill.Wins,
			&ps.Skill.Draws,
			&ps.Skill.Defeats,
			&ps.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, ps)
	}

	return skills, rows.Err()
}
