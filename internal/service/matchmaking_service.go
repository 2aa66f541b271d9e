package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"go.uber.org/zap"
)

// BanChecker 이용 제한 여부 조회
type BanChecker interface {
	IsBanned(ctx context.Context, playerID string) (bool, error)
}

// MatchCreator 짝지어진 두 대기열 항목으로 매치를 만든다
type MatchCreator interface {
	CreateMatch(ctx context.Context, order, chaos models.QueueEntry) (*MatchSession, error)
}

// MatchmakingConfig 대기열 설정
type MatchmakingConfig struct {
	Interval        time.Duration
	ToleranceBase   float64
	ToleranceGrowth float64 // 대기 1초당 증가량
	ToleranceMax    float64
	EntryTTL        time.Duration // 0 이면 만료 없음
	PairOnEnqueue   bool
}

type MatchmakingService struct {
	entries  map[string]*models.QueueEntry
	bans     BanChecker
	registry *MatchRegistry
	creator  MatchCreator
	cfg      MatchmakingConfig
	clock    clockwork.Clock
	logger   *zap.Logger

	queueMu  sync.Mutex
	trigger  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(
	bans BanChecker,
	registry *MatchRegistry,
	creator MatchCreator,
	cfg MatchmakingConfig,
	clock clockwork.Clock,
	logger *zap.Logger,
) *MatchmakingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}

	return &MatchmakingService{
		entries:  make(map[string]*models.QueueEntry),
		bans:     bans,
		registry: registry,
		creator:  creator,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start 매칭 루프 시작
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService", zap.Duration("interval", s.cfg.Interval))

	s.wg.Add(1)
	go s.matchmakingLoop()
}

// Stop 매칭 루프 중지
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

// matchmakingLoop 주기적 매칭 실행 (enqueue 시 즉시 실행도 받는다)
func (s *MatchmakingService) matchmakingLoop() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.RunPairingPass(context.Background())
		case <-s.trigger:
			s.RunPairingPass(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// Tolerance 대기 시간에 따른 허용 점수 차
func (s *MatchmakingService) Tolerance(wait time.Duration) float64 {
	tol := s.cfg.ToleranceBase + s.cfg.ToleranceGrowth*wait.Seconds()
	if s.cfg.ToleranceMax > 0 && tol > s.cfg.ToleranceMax {
		return s.cfg.ToleranceMax
	}
	return tol
}

// Enqueue 대기열 등록. 이미 있으면 새로 들어온 것으로 교체한다.
func (s *MatchmakingService) Enqueue(ctx context.Context, playerID string, skillScore float64) error {
	if playerID == "" {
		return fmt.Errorf("%w: player id required", ErrValidation)
	}

	if s.bans != nil {
		banned, err := s.bans.IsBanned(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to load ban status: %w", err)
		}
		if banned {
			return ErrPlayerBanned
		}
	}

	if s.registry != nil {
		if _, live := s.registry.FindByPlayer(playerID); live {
			return ErrAlreadyInMatch
		}
	}

	s.queueMu.Lock()
	_, replaced := s.entries[playerID]
	s.entries[playerID] = &models.QueueEntry{
		PlayerID:   playerID,
		SkillScore: skillScore,
		JoinedAt:   s.clock.Now(),
	}
	size := len(s.entries)
	s.queueMu.Unlock()

	s.logger.Debug("Player enqueued",
		zap.String("playerId", playerID),
		zap.Float64("skill", skillScore),
		zap.Bool("replaced", replaced),
		zap.Int("waiting", size))

	if s.cfg.PairOnEnqueue {
		select {
		case s.trigger <- struct{}{}:
		default:
		}
	}
	return nil
}

// Dequeue 대기열에서 제거 (없으면 false)
func (s *MatchmakingService) Dequeue(playerID string) bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if _, ok := s.entries[playerID]; !ok {
		return false
	}
	delete(s.entries, playerID)
	return true
}

// Status 플레이어의 대기열 상태
func (s *MatchmakingService) Status(playerID string) models.QueueStatus {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	status := models.QueueStatus{Waiting: len(s.entries)}
	if entry, ok := s.entries[playerID]; ok {
		status.InQueue = true
		status.JoinedAt = entry.JoinedAt
		status.Tolerance = s.Tolerance(entry.WaitTime(s.clock.Now()))
	}
	return status
}

// Len 대기 인원
func (s *MatchmakingService) Len() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.entries)
}

type candidatePair struct {
	order, chaos *models.QueueEntry
	diff         float64
	longestWait  time.Duration
	lowID        string
	highID       string
}

// RunPairingPass 한 번의 매칭. 생성된 매치 수를 반환한다.
func (s *MatchmakingService) RunPairingPass(ctx context.Context) int {
	pairs := s.selectPairs()
	if len(pairs) == 0 {
		return 0
	}

	created := 0
	for _, p := range pairs {
		session, err := s.creator.CreateMatch(ctx, *p.order, *p.chaos)
		if err != nil {
			s.logger.Error("Failed to create match",
				zap.String("order", p.order.PlayerID),
				zap.String("chaos", p.chaos.PlayerID),
				zap.Error(err))
			s.restore(p.order, p.chaos)
			continue
		}

		created++
		s.logger.Info("Match created automatically",
			zap.String("matchId", session.ID()),
			zap.String("order", p.order.PlayerID),
			zap.String("chaos", p.chaos.PlayerID),
			zap.Float64("skillDiff", p.diff))
	}

	if created > 0 {
		s.logger.Info("Matchmaking completed",
			zap.Int("matches_created", created),
			zap.Int("waiting", s.Len()))
	}
	return created
}

// selectPairs 허용 범위 안의 쌍을 탐욕적으로 고르고 대기열에서 한 번에 뺀다
func (s *MatchmakingService) selectPairs() []candidatePair {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	now := s.clock.Now()
	s.expireLocked(now)

	entries := make([]*models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	if len(entries) < 2 {
		return nil
	}

	var candidates []candidatePair
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			waitA, waitB := a.WaitTime(now), b.WaitTime(now)

			diff := math.Abs(a.SkillScore - b.SkillScore)
			if diff > math.Min(s.Tolerance(waitA), s.Tolerance(waitB)) {
				continue
			}

			// 오래 기다린 쪽이 Order (같으면 ID가 작은 쪽)
			order, chaos := a, b
			if waitB > waitA || (waitB == waitA && b.PlayerID < a.PlayerID) {
				order, chaos = b, a
			}

			low, high := a.PlayerID, b.PlayerID
			if high < low {
				low, high = high, low
			}

			candidates = append(candidates, candidatePair{
				order:       order,
				chaos:       chaos,
				diff:        diff,
				longestWait: order.WaitTime(now),
				lowID:       low,
				highID:      high,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.diff != cj.diff {
			return ci.diff < cj.diff
		}
		if ci.longestWait != cj.longestWait {
			return ci.longestWait > cj.longestWait
		}
		if ci.lowID != cj.lowID {
			return ci.lowID < cj.lowID
		}
		return ci.highID < cj.highID
	})

	used := make(map[string]bool)
	var selected []candidatePair
	for _, c := range candidates {
		if used[c.order.PlayerID] || used[c.chaos.PlayerID] {
			continue
		}
		used[c.order.PlayerID] = true
		used[c.chaos.PlayerID] = true
		delete(s.entries, c.order.PlayerID)
		delete(s.entries, c.chaos.PlayerID)
		selected = append(selected, c)
	}
	return selected
}

func (s *MatchmakingService) expireLocked(now time.Time) {
	if s.cfg.EntryTTL <= 0 {
		return
	}
	for id, e := range s.entries {
		if e.WaitTime(now) > s.cfg.EntryTTL {
			delete(s.entries, id)
			s.logger.Info("Queue entry expired", zap.String("playerId", id))
		}
	}
}

// restore 매치 생성에 실패한 항목을 원래 대기 시각으로 되돌린다
func (s *MatchmakingService) restore(entries ...*models.QueueEntry) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	for _, e := range entries {
		if _, rejoined := s.entries[e.PlayerID]; rejoined {
			continue
		}
		s.entries[e.PlayerID] = e
	}
}
