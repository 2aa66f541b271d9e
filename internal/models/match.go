package models

import "time"

// Side 한 매치에서 플레이어가 맡는 고정 역할
type Side string

const (
	SideOrder Side = "order"
	SideChaos Side = "chaos"
)

// Opponent 상대 진영
func (s Side) Opponent() Side {
	if s == SideOrder {
		return SideChaos
	}
	return SideOrder
}

// Valid order/chaos 여부
func (s Side) Valid() bool {
	return s == SideOrder || s == SideChaos
}

type MatchStatus string

const (
	MatchStatusWaiting    MatchStatus = "waiting"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusFinished   MatchStatus = "finished"
)

type MatchEventType string

const (
	MatchEventChoice  MatchEventType = "choice"
	MatchEventForfeit MatchEventType = "forfeit"
	MatchEventTimeout MatchEventType = "timeout"
	MatchEventMessage MatchEventType = "message"
)

type FinishReason string

const (
	FinishReasonTriple  FinishReason = "triple"
	FinishReasonDraw    FinishReason = "draw"
	FinishReasonForfeit FinishReason = "forfeit"
	FinishReasonTimeout FinishReason = "timeout"
	FinishReasonAborted FinishReason = "aborted"
)

// MatchEvent 매치 이벤트 로그 항목 (추가만 가능)
type MatchEvent struct {
	Side      Side           `json:"side"`
	Type      MatchEventType `json:"event"`
	Time      int64          `json:"time"` // 매치 시작 후 경과 ms
	Timestamp time.Time      `json:"timestamp"`
	Choice    int            `json:"choice,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// SideResult 진영별 결과와 레이팅 변화
type SideResult struct {
	PlayerID     string      `json:"playerId"`
	Score        float64     `json:"score"` // 1 승, 0.5 무, 0 패
	ScoreDelta   float64     `json:"scoreDelta"`
	RatingBefore float64     `json:"ratingBefore"`
	RatingAfter  float64     `json:"ratingAfter"`
	League       League      `json:"league"`
	Division     int         `json:"division,omitempty"`
	SkillAfter   SkillRecord `json:"skillAfter"`
}

type MatchResult struct {
	Winner *Side        `json:"winner"`
	Reason FinishReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
	Triple []int        `json:"triple,omitempty"`
	Rated  bool         `json:"rated"`
	Order  SideResult   `json:"order"`
	Chaos  SideResult   `json:"chaos"`
}

// For 진영별 결과
func (r *MatchResult) For(side Side) SideResult {
	if side == SideOrder {
		return r.Order
	}
	return r.Chaos
}

// IsDraw 무승부 여부 (중단된 매치는 제외)
func (r *MatchResult) IsDraw() bool {
	return r.Winner == nil && r.Reason == FinishReasonDraw
}

// MatchReport 종료된 매치의 최종 보고서
type MatchReport struct {
	MatchID       string       `json:"matchId" db:"id"`
	OrderPlayerID string       `json:"orderPlayerId" db:"order_player_id"`
	ChaosPlayerID string       `json:"chaosPlayerId" db:"chaos_player_id"`
	Result        MatchResult  `json:"result" db:"result"`
	Events        []MatchEvent `json:"events" db:"events"`
	StartedAt     time.Time    `json:"startedAt" db:"started_at"`
	FinishedAt    time.Time    `json:"finishedAt" db:"finished_at"`
}
