package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// SaveReport 매치 보고서 저장. 같은 매치 ID 가 이미 있으면 아무것도 하지 않는다
func (r *MatchRepository) SaveReport(ctx context.Context, report models.MatchReport) error {
	result, err := json.Marshal(report.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	events, err := json.Marshal(report.Events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	query := `
		INSERT INTO match_reports
			(id, order_player_id, chaos_player_id, reason, rated, result, events, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query,
		report.MatchID,
		report.OrderPlayerID,
		report.ChaosPlayerID,
		string(report.Result.Reason),
		report.Result.Rated,
		result,
		events,
		report.StartedAt,
		report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

const reportColumns = `id, order_player_id, chaos_player_id, result, events, started_at, finished_at`

// FindReport ID로 보고서 찾기. 없으면 nil, nil
func (r *MatchRepository) FindReport(ctx context.Context, matchID string) (*models.MatchReport, error) {
	query := `SELECT ` + reportColumns + ` FROM match_reports WHERE id = $1`

	report, err := scanReport(r.db.QueryRowContext(ctx, query, matchID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}

	return report, nil
}

// ListByPlayer 플레이어가 참가한 매치 (최근 순)
func (r *MatchRepository) ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]models.MatchReport, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM match_reports
		WHERE order_player_id = $1 OR chaos_player_id = $1
		ORDER BY finished_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, playerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []models.MatchReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *report)
	}

	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.MatchReport, error) {
	var (
		report         models.MatchReport
		result, events []byte
	)
	if err := row.Scan(
		&report.MatchID,
		&report.OrderPlayerID,
		&report.ChaosPlayerID,
		&result,
		&events,
		&report.StartedAt,
		&report.FinishedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(result, &report.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if err := json.Unmarshal(events, &report.Events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return &report, nil
}
