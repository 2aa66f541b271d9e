package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/database"
)

// ErrDuplicateUsername username UNIQUE 제약 위반
var ErrDuplicateUsername = errors.New("username already exists")

type PlayerRepository struct {
	db  *database.DB
	now func() time.Time
}

func NewPlayerRepository(db *database.DB) *PlayerRepository {
	return &PlayerRepository{db: db, now: time.Now}
}

const playerColumns = `id, username, display_name, password_hash, ban_reason, ban_expires_at, created_at`

// Create 새 플레이어 생성
func (r *PlayerRepository) Create(ctx context.Context, username, displayName, passwordHash string) (*models.Player, error) {
	query := `
		INSERT INTO players (id, username, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + playerColumns

	player, err := scanPlayer(r.db.QueryRowContext(ctx, query, uuid.New().String(), username, displayName, passwordHash))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

// FindByID ID로 플레이어 찾기
func (r *PlayerRepository) FindByID(ctx context.Context, id string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	player, err := scanPlayer(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}

	return player, nil
}

// FindByUsername 사용자명으로 찾기
func (r *PlayerRepository) FindByUsername(ctx context.Context, username string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE username = $1`

	player, err := scanPlayer(r.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}

	return player, nil
}

// IsBanned 현재 유효한 제재가 있는지 확인. 없는 플레이어는 제재 없음
func (r *PlayerRepository) IsBanned(ctx context.Context, playerID string) (bool, error) {
	player, err := r.FindByID(ctx, playerID)
	if err != nil {
		return false, err
	}
	if player == nil {
		return false, nil
	}
	return player.Ban.Active(r.now()), nil
}

// Ban 이용 제한. expiresAt 이 nil 이면 영구
func (r *PlayerRepository) Ban(ctx context.Context, playerID, reason string, expiresAt *time.Time) error {
	query := `UPDATE players SET ban_reason = $1, ban_expires_at = $2 WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, reason, expiresAt, playerID); err != nil {
		return fmt.Errorf("failed to ban player: %w", err)
	}
	return nil
}

// Unban 제재 해제
func (r *PlayerRepository) Unban(ctx context.Context, playerID string) error {
	query := `UPDATE players SET ban_reason = NULL, ban_expires_at = NULL WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, playerID); err != nil {
		return fmt.Errorf("failed to unban player: %w", err)
	}
	return nil
}

func scanPlayer(row *sql.Row) (*models.Player, error) {
	var (
		player    models.Player
		banReason sql.NullString
		banExpiry sql.NullTime
	)
	if err := row.Scan(
		&player.ID,
		&player.Username,
		&player.DisplayName,
		&player.PasswordHash,
		&banReason,
		&banExpiry,
		&player.CreatedAt,
	); err != nil {
		return nil, err
	}

	if banReason.Valid {
		player.Ban = &models.Ban{Reason: banReason.String}
		if banExpiry.Valid {
			expires := banExpiry.Time
			player.Ban.ExpiresAt = &expires
		}
	}
	return &player, nil
}
