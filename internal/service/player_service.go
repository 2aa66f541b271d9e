package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/internal/repository"
)

// PlayerStore 플레이어 계정 저장소
type PlayerStore interface {
	Create(ctx context.Context, username, displayName, passwordHash string) (*models.Player, error)
	FindByID(ctx context.Context, id string) (*models.Player, error)
	FindByUsername(ctx context.Context, username string) (*models.Player, error)
}

type PlayerService struct {
	players PlayerStore
}

func NewPlayerService(players PlayerStore) *PlayerService {
	return &PlayerService{players: players}
}

// Register 새 플레이어 등록
func (s *PlayerService) Register(ctx context.Context, username, displayName, password string) (*models.Player, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 6 {
		return nil, ErrInvalidInput
	}
	if displayName == "" {
		displayName = username
	}

	existing, err := s.players.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing username: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	player, err := s.players.Create(ctx, username, displayName, passwordHash)
	if errors.Is(err, repository.ErrDuplicateUsername) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

// Login 사용자명과 비밀번호 확인
func (s *PlayerService) Login(ctx context.Context, username, password string) (*models.Player, error) {
	player, err := s.players.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	if player == nil || !player.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	return player, nil
}

// GetPlayer ID로 조회
func (s *PlayerService) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	player, err := s.players.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	if player == nil {
		return nil, ErrPlayerNotFound
	}
	return player, nil
}
