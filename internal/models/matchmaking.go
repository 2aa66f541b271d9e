package models

import "time"

// QueueEntry 매칭 대기열 항목 (플레이어당 하나)
type QueueEntry struct {
	PlayerID     string    `json:"playerId"`
	SkillScore   float64   `json:"skillScore"`
	JoinedAt     time.Time `json:"joinedAt"`
	ConnectionID string    `json:"-"`
}

// WaitTime 대기 시간
func (e *QueueEntry) WaitTime(now time.Time) time.Duration {
	if now.Before(e.JoinedAt) {
		return 0
	}
	return now.Sub(e.JoinedAt)
}

// QueueStatus 대기열 상태 조회 응답
type QueueStatus struct {
	InQueue   bool      `json:"inQueue"`
	JoinedAt  time.Time `json:"joinedAt,omitempty"`
	Tolerance float64   `json:"tolerance,omitempty"`
	Waiting   int       `json:"waiting"`
}
