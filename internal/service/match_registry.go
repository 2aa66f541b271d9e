package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"go.uber.org/zap"
)

// MatchRegistry 진행 중인 세션 테이블 (세션 생존 여부의 단일 기준)
type MatchRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*MatchSession
	byPlayer map[string]string

	rating   *ELOService
	clock    clockwork.Clock
	listener SessionListener
	newID    func() string
	logger   *zap.Logger
}

// NewMatchRegistry MatchRegistry 생성
func NewMatchRegistry(rating *ELOService, clock clockwork.Clock, logger *zap.Logger) *MatchRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchRegistry{
		sessions: make(map[string]*MatchSession),
		byPlayer: make(map[string]string),
		rating:   rating,
		clock:    clock,
		newID:    func() string { return uuid.New().String() },
		logger:   logger,
	}
}

// SetListener 새로 만드는 세션에 붙일 이벤트 수신자
func (r *MatchRegistry) SetListener(listener SessionListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = listener
}

// Create 세션을 만들어 등록한 뒤 시작
func (r *MatchRegistry) Create(order, chaos Seat, budget time.Duration) (string, *MatchSession, error) {
	r.mu.Lock()
	if _, busy := r.byPlayer[order.PlayerID]; busy {
		r.mu.Unlock()
		return "", nil, ErrAlreadyInMatch
	}
	if _, busy := r.byPlayer[chaos.PlayerID]; busy {
		r.mu.Unlock()
		return "", nil, ErrAlreadyInMatch
	}

	id := r.newID()
	session := NewMatchSession(id, r.rating, WithClock(r.clock), WithListener(r.listener))
	r.sessions[id] = session
	r.byPlayer[order.PlayerID] = id
	r.byPlayer[chaos.PlayerID] = id
	r.mu.Unlock()

	// 등록 후 시작해야 session_started 수신자가 Get 으로 찾을 수 있다
	if err := session.Start(order, chaos, budget); err != nil {
		r.drop(id)
		return "", nil, err
	}

	r.logger.Info("Match session created",
		zap.String("matchId", id),
		zap.String("order", order.PlayerID),
		zap.String("chaos", chaos.PlayerID))

	return id, session, nil
}

// Get 세션 조회
func (r *MatchRegistry) Get(id string) (*MatchSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return session, nil
}

// FindByPlayer 플레이어가 참가 중인 세션
func (r *MatchRegistry) FindByPlayer(playerID string) (*MatchSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	return r.sessions[id], true
}

// Remove 세션 제거. 보고서가 저장된 뒤에만 호출해야 하므로 끝나지 않은 세션은 거부한다.
func (r *MatchRegistry) Remove(id string) error {
	session, err := r.Get(id)
	if err != nil {
		return err
	}
	if session.Status() != models.MatchStatusFinished {
		return ErrSessionNotFinished
	}
	r.drop(id)
	return nil
}

// Sessions 등록된 모든 세션
func (r *MatchRegistry) Sessions() []*MatchSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*MatchSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len 등록된 세션 수
func (r *MatchRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AbortAll 진행 중인 모든 세션을 강제 종료 (서버 종료 시)
func (r *MatchRegistry) AbortAll(reason string) []*MatchSession {
	var aborted []*MatchSession
	for _, s := range r.Sessions() {
		if s.Abort(reason) {
			aborted = append(aborted, s)
		}
	}
	if len(aborted) > 0 {
		r.logger.Warn("Aborted live match sessions",
			zap.Int("count", len(aborted)),
			zap.String("reason", reason))
	}
	return aborted
}

func (r *MatchRegistry) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	for player, matchID := range r.byPlayer {
		if matchID == id {
			delete(r.byPlayer, player)
		}
	}
}
