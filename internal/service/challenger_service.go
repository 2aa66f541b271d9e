package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	"go.uber.org/zap"
)

const challengerLockKey = "arena:lock:challengers"

// ChallengerStore 챌린저 재계산에 필요한 저장소
type ChallengerStore interface {
	// ListTopTier 점수가 floor 이상인 플레이어 전부
	ListTopTier(ctx context.Context, floor float64) ([]models.PlayerSkill, error)
	// SetChallengers 주어진 플레이어만 챌린저로 표시하고 나머지는 해제
	SetChallengers(ctx context.Context, playerIDs []string) error
}

// Locker 여러 인스턴스 중 하나만 배치를 돌리도록 하는 분산 락
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// ChallengerService 최상위 리그 상위 N명에게 챌린저 배지 부여
type ChallengerService struct {
	store   ChallengerStore
	elo     *ELOService
	slots   int
	locker  Locker
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewChallengerService 챌린저 배치 서비스 생성
func NewChallengerService(store ChallengerStore, elo *ELOService, slots int, logger *zap.Logger) *ChallengerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengerService{
		store:   store,
		elo:     elo,
		slots:   slots,
		lockTTL: time.Minute,
		logger:  logger,
	}
}

// SetLocker Redis 락 주입 (단일 인스턴스면 생략)
func (s *ChallengerService) SetLocker(locker Locker) {
	s.locker = locker
}

// RecomputeChallengers 챌린저 집합을 다시 계산해 저장.
// 다른 인스턴스가 락을 잡고 있으면 아무것도 하지 않고 nil 반환
func (s *ChallengerService) RecomputeChallengers(ctx context.Context) ([]string, error) {
	if s.locker == nil {
		return s.recompute(ctx)
	}

	var selected []string
	err := s.locker.WithLock(ctx, challengerLockKey, s.lockTTL, func(ctx context.Context) error {
		ids, err := s.recompute(ctx)
		selected = ids
		return err
	})
	if errors.Is(err, distributed.ErrLockNotAcquired) {
		s.logger.Debug("Challenger recomputation skipped, lock held elsewhere")
		return nil, nil
	}
	return selected, err
}

func (s *ChallengerService) recompute(ctx context.Context) ([]string, error) {
	leagues := s.elo.Config().Leagues
	floor := leagues[len(leagues)-1].Floor

	candidates, err := s.store.ListTopTier(ctx, floor)
	if err != nil {
		return nil, fmt.Errorf("failed to list top tier: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if c := CompareSkill(candidates[i].Skill, candidates[j].Skill); c != 0 {
			return c < 0
		}
		return candidates[i].PlayerID < candidates[j].PlayerID
	})

	n := s.slots
	if n > len(candidates) {
		n = len(candidates)
	}
	if n < 0 {
		n = 0
	}

	ids := make([]string, 0, n)
	for _, c := range candidates[:n] {
		ids = append(ids, c.PlayerID)
	}

	if err := s.store.SetChallengers(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to set challengers: %w", err)
	}

	s.logger.Info("Challengers recomputed",
		zap.Int("candidates", len(candidates)),
		zap.Int("challengers", len(ids)),
	)
	return ids, nil
}
