package models

import "time"

// SkillRecord 플레이어 레이팅 스냅샷
type SkillRecord struct {
	Score      float64 `json:"score" db:"score"`
	Matches    int     `json:"matches" db:"matches"`
	KFactor    float64 `json:"k" db:"k_factor"`
	Challenger bool    `json:"challenger" db:"challenger"`
	Wins       int     `json:"wins" db:"wins"`
	Draws      int     `json:"draws" db:"draws"`
	Defeats    int     `json:"defeats" db:"defeats"`
}

// MatchStats 레이팅 매치 전적
type MatchStats struct {
	Wins    int `json:"wins"`
	Draws   int `json:"draws"`
	Defeats int `json:"defeats"`
}

// Stats 전적만 꺼낸다
func (s SkillRecord) Stats() MatchStats {
	return MatchStats{Wins: s.Wins, Draws: s.Draws, Defeats: s.Defeats}
}

// PlayerSkill 플레이어 ID가 붙은 SkillRecord (리더보드, 챌린저 계산용)
type PlayerSkill struct {
	PlayerID  string      `json:"playerId" db:"player_id"`
	Skill     SkillRecord `json:"skill"`
	UpdatedAt time.Time   `json:"updatedAt" db:"updated_at"`
}

type League string

const (
	LeagueBronze  League = "bronze"
	LeagueSilver  League = "silver"
	LeagueGold    League = "gold"
	LeagueDiamond League = "diamond"
	LeagueMaster  League = "master"
)

// DisplayRating 화면 표시용 레이팅
type DisplayRating struct {
	League      League  `json:"league"`
	Division    int     `json:"division,omitempty"` // 5(최하) ~ 1(최상), 최상위 리그는 0
	Progress    float64 `json:"progress"`
	Score       float64 `json:"score"`
	Challenger  bool    `json:"challenger"`
	Provisional bool    `json:"provisional"`
}

// Ban 이용 제한 정보
type Ban struct {
	Reason    string     `json:"reason" db:"ban_reason"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"ban_expires_at"`
}

// Active 현재 유효한 제재인지 확인 (만료 시각이 없으면 영구)
func (b *Ban) Active(now time.Time) bool {
	if b == nil {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
