package service

import (
	"math"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/logger"
)

// Outcome 한 플레이어 입장에서의 매치 결과
type Outcome int

const (
	OutcomeLoss Outcome = iota
	OutcomeDraw
	OutcomeWin
)

// ActualScore 실제 점수 (승 1, 무 0.5, 패 0)
func (o Outcome) ActualScore() float64 {
	switch o {
	case OutcomeWin:
		return 1.0
	case OutcomeDraw:
		return 0.5
	}
	return 0.0
}

// ELOService ELO 레이팅 계산 서비스
type ELOService struct {
	cfg models.RatingConfig
}

// NewELOService ELO 서비스 생성
func NewELOService(cfg models.RatingConfig) *ELOService {
	defaults := models.DefaultRatingConfig()
	if cfg.ExpectationBase <= 1 {
		cfg.ExpectationBase = defaults.ExpectationBase
	}
	if cfg.ExpectationDivisor <= 0 {
		cfg.ExpectationDivisor = defaults.ExpectationDivisor
	}
	if cfg.Divisions <= 0 {
		cfg.Divisions = defaults.Divisions
	}
	if !models.ValidLeagues(cfg.Leagues) {
		if len(cfg.Leagues) > 0 {
			logger.Warn("League floors must be strictly ascending, using defaults", "leagues", cfg.Leagues)
		}
		cfg.Leagues = defaults.Leagues
	}
	if cfg.TopLeagueWidth <= 0 {
		cfg.TopLeagueWidth = defaults.TopLeagueWidth
	}
	if cfg.InitialScore <= 0 {
		cfg.InitialScore = defaults.InitialScore
	}
	if cfg.ProvisionalK <= 0 || cfg.IntermediateK <= 0 || cfg.EstablishedK <= 0 {
		cfg.ProvisionalK = defaults.ProvisionalK
		cfg.IntermediateK = defaults.IntermediateK
		cfg.EstablishedK = defaults.EstablishedK
	}
	return &ELOService{cfg: cfg}
}

// Config 현재 레이팅 설정
func (s *ELOService) Config() models.RatingConfig {
	return s.cfg
}

// NewSkill 처음 매치를 하는 플레이어의 SkillRecord
func (s *ELOService) NewSkill() models.SkillRecord {
	return models.SkillRecord{
		Score:   s.cfg.InitialScore,
		KFactor: s.GetKFactor(0),
	}
}

// GetKFactor returns the K-factor for the number of matches played.
// Provisional players converge faster, established ratings move slowly.
func (s *ELOService) GetKFactor(matchCount int) float64 {
	if matchCount < s.cfg.ProvisionalMatches {
		return s.cfg.ProvisionalK
	} else if matchCount < s.cfg.IntermediateMatches {
		return s.cfg.IntermediateK
	}
	return s.cfg.EstablishedK
}

// ComputeOutcome 매치 결과를 점수 변화량과 새 SkillRecord 로 변환
func (s *ELOService) ComputeOutcome(my, opponent models.SkillRecord, outcome Outcome) (float64, models.SkillRecord) {
	k := my.KFactor
	if k <= 0 {
		k = s.GetKFactor(my.Matches)
	}

	expected := s.ExpectedScore(my.Score, opponent.Score)
	delta := k * (outcome.ActualScore() - expected)

	next := my
	next.Score = my.Score + delta
	next.Matches = my.Matches + 1
	next.KFactor = s.GetKFactor(next.Matches)
	switch outcome {
	case OutcomeWin:
		next.Wins++
	case OutcomeDraw:
		next.Draws++
	default:
		next.Defeats++
	}

	return delta, next
}

// ExpectedScore ELO에 기반한 기대 승률 계산
func (s *ELOService) ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(s.cfg.ExpectationBase, (ratingB-ratingA)/s.cfg.ExpectationDivisor))
}

// CompareSkill 순위 비교: 점수 내림차순, 같으면 매치 수 내림차순.
// a 가 앞이면 음수, 뒤면 양수.
func CompareSkill(a, b models.SkillRecord) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.Matches > b.Matches:
		return -1
	case a.Matches < b.Matches:
		return 1
	}
	return 0
}

// ToDisplayRating 점수를 리그/디비전/진행도로 변환
func (s *ELOService) ToDisplayRating(skill models.SkillRecord) models.DisplayRating {
	leagues := s.cfg.Leagues
	idx := 0
	for i, l := range leagues {
		if skill.Score >= l.Floor {
			idx = i
		}
	}

	display := models.DisplayRating{
		League:      leagues[idx].League,
		Score:       skill.Score,
		Provisional: skill.Matches < s.cfg.ProvisionalMatches,
	}

	floor := leagues[idx].Floor
	if idx == len(leagues)-1 {
		display.Progress = clamp01((skill.Score - floor) / s.cfg.TopLeagueWidth)
		display.Challenger = skill.Challenger
		return display
	}

	width := (leagues[idx+1].Floor - floor) / float64(s.cfg.Divisions)
	pos := math.Max(0, skill.Score-floor)
	band := int(pos / width)
	if band >= s.cfg.Divisions {
		band = s.cfg.Divisions - 1
	}

	display.Division = s.cfg.Divisions - band
	display.Progress = clamp01((pos - float64(band)*width) / width)
	return display
}

// TierIndex 리그/디비전을 하나의 순위 값으로 (클수록 높음)
func (s *ELOService) TierIndex(d models.DisplayRating) int {
	for i, l := range s.cfg.Leagues {
		if l.League == d.League {
			if d.Division == 0 {
				return i*s.cfg.Divisions + s.cfg.Divisions
			}
			return i*s.cfg.Divisions + (s.cfg.Divisions - d.Division)
		}
	}
	return -1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
