package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"go.uber.org/zap"
)

// SkillStore 레이팅 저장소
type SkillStore interface {
	// LoadSkill 저장된 레이팅. 기록이 없으면 found=false
	LoadSkill(ctx context.Context, playerID string) (skill models.SkillRecord, found bool, err error)
	SaveSkill(ctx context.Context, playerID string, skill models.SkillRecord) error
	ListLeaderboard(ctx context.Context, limit, offset int) ([]models.PlayerSkill, error)
}

// ReportStore 매치 보고서 저장소. SaveReport 는 같은 매치 ID 에 대해 멱등이어야 한다.
type ReportStore interface {
	SaveReport(ctx context.Context, report models.MatchReport) error
	FindReport(ctx context.Context, matchID string) (*models.MatchReport, error)
	ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]models.MatchReport, error)
}

// ReportArchiver 보고서 외부 보관 (선택)
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, report models.MatchReport) error
}

// ReportPusher 저장 실패한 보고서를 재처리 큐에 넣는다
type ReportPusher interface {
	Push(ctx context.Context, report models.MatchReport) error
}

// MessageLimiter 채팅 빈도 제한 (ratelimit.RedisRateLimiter)
type MessageLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Notifier 플레이어에게 메시지 전달 (websocket Hub)
type Notifier interface {
	SendToUser(userID string, msgType string, payload interface{})
	IsOnline(userID string) bool
}

// MatchServiceConfig 매치 운영 설정
type MatchServiceConfig struct {
	TimeBudget        time.Duration // 진영별 시간
	DisconnectGrace   time.Duration // 0 이면 자동 기권 없음
	RequeueAfterMatch bool
	SettleTimeout     time.Duration
	MessageLimit      int // MessageWindow 당 채팅 수
	MessageWindow     time.Duration
}

type MatchService struct {
	registry    *MatchRegistry
	elo         *ELOService
	skills      SkillStore
	reports     ReportStore
	archiver    ReportArchiver
	outbox      ReportPusher
	limiter     MessageLimiter
	notifier    Notifier
	matchmaking *MatchmakingService
	cfg         MatchServiceConfig
	clock       clockwork.Clock
	logger      *zap.Logger

	graceMu sync.Mutex
	grace   map[string]clockwork.Timer // playerID -> 자동 기권 타이머

	settleMu sync.Mutex
	settling map[string]bool
	wg       sync.WaitGroup
}

func NewMatchService(
	registry *MatchRegistry,
	elo *ELOService,
	skills SkillStore,
	reports ReportStore,
	notifier Notifier,
	cfg MatchServiceConfig,
	clock clockwork.Clock,
	logger *zap.Logger,
) *MatchService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = 60 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 10 * time.Second
	}

	s := &MatchService{
		registry: registry,
		elo:      elo,
		skills:   skills,
		reports:  reports,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		grace:    make(map[string]clockwork.Timer),
		settling: make(map[string]bool),
	}
	registry.SetListener(s.handleEvent)
	return s
}

// SetMatchmakingService sets the matchmaking service (to avoid circular dependency)
func (s *MatchService) SetMatchmakingService(matchmakingService *MatchmakingService) {
	s.matchmaking = matchmakingService
}

// SetArchiver 보고서 보관소 지정
func (s *MatchService) SetArchiver(archiver ReportArchiver) {
	s.archiver = archiver
}

// SetOutbox 저장 실패 보고서 큐 지정
func (s *MatchService) SetOutbox(outbox ReportPusher) {
	s.outbox = outbox
}

// SetMessageLimiter 채팅 빈도 제한 지정
func (s *MatchService) SetMessageLimiter(limiter MessageLimiter) {
	s.limiter = limiter
}

// LoadSkill 레이팅 조회. 기록이 없으면 초기값.
func (s *MatchService) LoadSkill(ctx context.Context, playerID string) (models.SkillRecord, error) {
	skill, found, err := s.skills.LoadSkill(ctx, playerID)
	if err != nil {
		return models.SkillRecord{}, fmt.Errorf("failed to load skill: %w", err)
	}
	if !found {
		return s.elo.NewSkill(), nil
	}
	return skill, nil
}

// DisplayRating 레이팅 기록을 표시용으로 변환
func (s *MatchService) DisplayRating(skill models.SkillRecord) models.DisplayRating {
	return s.elo.ToDisplayRating(skill)
}

// CreateMatch 짝지어진 대기열 항목으로 세션을 만든다 (MatchCreator)
func (s *MatchService) CreateMatch(ctx context.Context, order, chaos models.QueueEntry) (*MatchSession, error) {
	orderSkill, err := s.LoadSkill(ctx, order.PlayerID)
	if err != nil {
		return nil, err
	}
	chaosSkill, err := s.LoadSkill(ctx, chaos.PlayerID)
	if err != nil {
		return nil, err
	}

	_, session, err := s.registry.Create(
		Seat{PlayerID: order.PlayerID, Skill: orderSkill},
		Seat{PlayerID: chaos.PlayerID, Skill: chaosSkill},
		s.cfg.TimeBudget,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return session, nil
}

// JoinQueue 현재 레이팅으로 대기열 등록
func (s *MatchService) JoinQueue(ctx context.Context, playerID string) (models.QueueStatus, error) {
	if s.matchmaking == nil {
		return models.QueueStatus{}, errors.New("matchmaking is not configured")
	}
	skill, err := s.LoadSkill(ctx, playerID)
	if err != nil {
		return models.QueueStatus{}, err
	}
	if err := s.matchmaking.Enqueue(ctx, playerID, skill.Score); err != nil {
		return models.QueueStatus{}, err
	}
	return s.matchmaking.Status(playerID), nil
}

// LeaveQueue 대기열 이탈
func (s *MatchService) LeaveQueue(playerID string) error {
	if s.matchmaking == nil || !s.matchmaking.Dequeue(playerID) {
		return ErrPlayerNotInQueue
	}
	return nil
}

// QueueStatus 대기열 상태
func (s *MatchService) QueueStatus(playerID string) models.QueueStatus {
	if s.matchmaking == nil {
		return models.QueueStatus{}
	}
	return s.matchmaking.Status(playerID)
}

// SubmitMove 플레이어의 숫자 선택. matchID 가 비어 있으면 참가 중인 매치를 찾는다.
func (s *MatchService) SubmitMove(matchID, playerID string, number int) error {
	session, side, err := s.resolve(matchID, playerID)
	if err != nil {
		return err
	}
	return session.SubmitMove(side, number)
}

// Forfeit 기권
func (s *MatchService) Forfeit(matchID, playerID string) error {
	session, side, err := s.resolve(matchID, playerID)
	if err != nil {
		return err
	}
	return session.Forfeit(side)
}

// PostMessage 채팅. 제한기 오류 시에는 허용한다.
func (s *MatchService) PostMessage(ctx context.Context, matchID, playerID, text string) error {
	session, side, err := s.resolve(matchID, playerID)
	if err != nil {
		return err
	}

	if s.limiter != nil && s.cfg.MessageLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "chat:"+playerID, s.cfg.MessageLimit, s.cfg.MessageWindow)
		if err != nil {
			s.logger.Warn("Chat rate limit check failed", zap.String("playerId", playerID), zap.Error(err))
		} else if !allowed {
			return ErrRateLimited
		}
	}
	return session.PostMessage(side, text)
}

// GetState 진행 중(또는 정산 대기 중)인 매치 스냅샷
func (s *MatchService) GetState(matchID string) (models.SessionState, error) {
	session, err := s.registry.Get(matchID)
	if err != nil {
		return models.SessionState{}, err
	}
	return session.State(), nil
}

// GetReport 보고서 조회. 정산 전이면 메모리의 보고서를 돌려준다.
func (s *MatchService) GetReport(ctx context.Context, matchID string) (*models.MatchReport, error) {
	if session, err := s.registry.Get(matchID); err == nil {
		report, err := session.BuildReport()
		if err != nil {
			return nil, err
		}
		return &report, nil
	}

	report, err := s.reports.FindReport(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if report == nil {
		return nil, ErrMatchNotFound
	}
	return report, nil
}

// ListReports 플레이어의 매치 기록
func (s *MatchService) ListReports(ctx context.Context, playerID string, page, pageSize int) ([]models.MatchReport, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	reports, err := s.reports.ListByPlayer(ctx, playerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports: %w", err)
	}
	return reports, nil
}

// Leaderboard 레이팅 순위
func (s *MatchService) Leaderboard(ctx context.Context, limit, offset int) ([]models.PlayerSkill, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	skills, err := s.skills.ListLeaderboard(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return skills, nil
}

// PlayerDisconnected 연결 종료 처리: 대기열에서 빼고, 매치 중이면 타이머를 멈춘다
func (s *MatchService) PlayerDisconnected(playerID string) {
	if s.matchmaking != nil && s.matchmaking.Dequeue(playerID) {
		s.logger.Info("Removed disconnected player from queue", zap.String("playerId", playerID))
	}

	session, ok := s.registry.FindByPlayer(playerID)
	if !ok {
		return
	}
	side, err := session.SideOf(playerID)
	if err != nil {
		return
	}
	if err := session.Disconnect(side); err != nil {
		return
	}

	if s.cfg.DisconnectGrace <= 0 {
		return
	}

	s.graceMu.Lock()
	defer s.graceMu.Unlock()

	if old, exists := s.grace[playerID]; exists {
		old.Stop()
	}
	s.grace[playerID] = s.clock.AfterFunc(s.cfg.DisconnectGrace, func() {
		s.graceMu.Lock()
		delete(s.grace, playerID)
		s.graceMu.Unlock()

		if session.IsConnected(side) {
			return
		}
		s.logger.Info("Disconnect grace expired, forfeiting",
			zap.String("matchId", session.ID()),
			zap.String("playerId", playerID))
		if err := session.Forfeit(side); err != nil {
			s.logger.Warn("Failed to forfeit after grace period", zap.Error(err))
		}
	})
}

// PlayerConnected 재연결 처리: 진행 중인 매치가 있으면 타이머를 재개하고 현재 상태를 보낸다
func (s *MatchService) PlayerConnected(playerID string) {
	// 재연결 표시 후 타이머를 취소해야 동시에 만료된 콜백이 기권시키지 않는다
	defer s.cancelGrace(playerID)

	session, ok := s.registry.FindByPlayer(playerID)
	if !ok {
		return
	}
	side, err := session.SideOf(playerID)
	if err != nil {
		return
	}
	if err := session.Reconnect(side); err != nil && !errors.Is(err, ErrSessionNotActive) {
		s.logger.Warn("Failed to reconnect player", zap.String("playerId", playerID), zap.Error(err))
	}

	if s.notifier != nil {
		s.notifier.SendToUser(playerID, models.EventSessionState, session.State())
	}
}

// RetryPending 저장에 실패해 남아 있는 종료 세션을 다시 정산
func (s *MatchService) RetryPending(ctx context.Context) int {
	settled := 0
	for _, session := range s.registry.Sessions() {
		if session.Status() != models.MatchStatusFinished {
			continue
		}
		if err := s.settle(ctx, session); err == nil {
			settled++
		}
	}
	if settled > 0 {
		s.logger.Info("Pending settlements completed", zap.Int("count", settled))
	}
	return settled
}

// SettleReport 보고서 하나를 저장하고 관련 세션을 정리 (outbox 재처리용)
func (s *MatchService) SettleReport(ctx context.Context, report models.MatchReport) error {
	if err := s.persist(ctx, report); err != nil {
		return err
	}
	s.release(ctx, report)
	return nil
}

// Shutdown 진행 중인 모든 매치를 중단하고 정산이 끝날 때까지 기다린다
func (s *MatchService) Shutdown(ctx context.Context) error {
	s.graceMu.Lock()
	for id, t := range s.grace {
		t.Stop()
		delete(s.grace, id)
	}
	s.graceMu.Unlock()

	s.registry.AbortAll("server shutdown")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to settle aborted matches: %w", ctx.Err())
	}
}

// handleEvent 세션 이벤트를 두 플레이어에게 전달하고, 종료 시 정산한다
func (s *MatchService) handleEvent(session *MatchSession, ev models.SessionEvent) {
	players := session.Players()

	if s.notifier != nil {
		for _, playerID := range players {
			s.notifier.SendToUser(playerID, ev.Type, ev)
		}
	}

	if ev.Type != models.EventSessionFinished {
		return
	}

	for _, playerID := range players {
		s.cancelGrace(playerID)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SettleTimeout)
		defer cancel()
		s.settle(ctx, session)
	}()
}

// settle 종료 세션의 레이팅과 보고서를 저장하고 레지스트리에서 제거.
// 실패하면 세션을 남겨 두고 보고서를 outbox 로 보낸다.
func (s *MatchService) settle(ctx context.Context, session *MatchSession) error {
	s.settleMu.Lock()
	if s.settling[session.ID()] {
		s.settleMu.Unlock()
		return errors.New("settlement already in progress")
	}
	s.settling[session.ID()] = true
	s.settleMu.Unlock()

	defer func() {
		s.settleMu.Lock()
		delete(s.settling, session.ID())
		s.settleMu.Unlock()
	}()

	report, err := session.BuildReport()
	if err != nil {
		return err
	}

	if err := s.persist(ctx, report); err != nil {
		s.logger.Error("Failed to settle match, keeping it pending",
			zap.String("matchId", report.MatchID),
			zap.Error(err))

		if s.outbox != nil {
			if pushErr := s.outbox.Push(ctx, report); pushErr != nil {
				s.logger.Error("Failed to push report to outbox",
					zap.String("matchId", report.MatchID),
					zap.Error(pushErr))
			}
		}
		return err
	}

	s.release(ctx, report)
	return nil
}

// persist 레이팅 두 개와 보고서를 저장. 보관소 실패는 정산 실패로 보지 않는다.
func (s *MatchService) persist(ctx context.Context, report models.MatchReport) error {
	if report.Result.Rated {
		for _, sr := range []models.SideResult{report.Result.Order, report.Result.Chaos} {
			if err := s.skills.SaveSkill(ctx, sr.PlayerID, sr.SkillAfter); err != nil {
				return fmt.Errorf("failed to save skill for %s: %w", sr.PlayerID, err)
			}
		}
	}

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveReport(ctx, report); err != nil {
			s.logger.Warn("Failed to archive report",
				zap.String("matchId", report.MatchID),
				zap.Error(err))
		}
	}

	s.logger.Info("Match settled",
		zap.String("matchId", report.MatchID),
		zap.String("reason", string(report.Result.Reason)),
		zap.Bool("rated", report.Result.Rated),
		zap.Float64("orderDelta", report.Result.Order.ScoreDelta),
		zap.Float64("chaosDelta", report.Result.Chaos.ScoreDelta))
	return nil
}

// release 세션 제거 후 필요하면 두 플레이어를 다시 대기열에 넣는다
func (s *MatchService) release(ctx context.Context, report models.MatchReport) {
	if err := s.registry.Remove(report.MatchID); err != nil && !errors.Is(err, ErrMatchNotFound) {
		s.logger.Warn("Failed to remove settled match", zap.String("matchId", report.MatchID), zap.Error(err))
	}

	if !s.cfg.RequeueAfterMatch || s.matchmaking == nil || report.Result.Reason == models.FinishReasonAborted {
		return
	}

	for _, sr := range []models.SideResult{report.Result.Order, report.Result.Chaos} {
		if s.notifier == nil || !s.notifier.IsOnline(sr.PlayerID) {
			continue
		}
		if err := s.matchmaking.Enqueue(ctx, sr.PlayerID, sr.SkillAfter.Score); err != nil {
			s.logger.Warn("Failed to re-enqueue player after match",
				zap.String("playerId", sr.PlayerID),
				zap.Error(err))
			continue
		}
		s.notifier.SendToUser(sr.PlayerID, models.EventQueueJoined, s.matchmaking.Status(sr.PlayerID))
	}
}

func (s *MatchService) cancelGrace(playerID string) {
	s.graceMu.Lock()
	defer s.graceMu.Unlock()

	if t, exists := s.grace[playerID]; exists {
		t.Stop()
		delete(s.grace, playerID)
	}
}

func (s *MatchService) resolve(matchID, playerID string) (*MatchSession, models.Side, error) {
	var session *MatchSession
	if matchID == "" {
		found, ok := s.registry.FindByPlayer(playerID)
		if !ok {
			return nil, "", ErrNoActiveMatch
		}
		session = found
	} else {
		found, err := s.registry.Get(matchID)
		if err != nil {
			return nil, "", err
		}
		session = found
	}

	side, err := session.SideOf(playerID)
	if err != nil {
		return nil, "", err
	}
	return session, side, nil
}
