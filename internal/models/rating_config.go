package models

// LeagueThreshold 리그 하한 점수
type LeagueThreshold struct {
	League League  `json:"league"`
	Floor  float64 `json:"floor"`
}

// RatingConfig 레이팅 계산 상수 (DB rating_config 로 덮어쓸 수 있음)
type RatingConfig struct {
	InitialScore        float64           `json:"initialScore"`
	ExpectationBase     float64           `json:"expectationBase"`
	ExpectationDivisor  float64           `json:"expectationDivisor"`
	ProvisionalMatches  int               `json:"provisionalMatches"`
	IntermediateMatches int               `json:"intermediateMatches"`
	ProvisionalK        float64           `json:"provisionalK"`
	IntermediateK       float64           `json:"intermediateK"`
	EstablishedK        float64           `json:"establishedK"`
	Divisions           int               `json:"divisions"`
	Leagues             []LeagueThreshold `json:"leagues"` // 하한 오름차순, 마지막 리그는 디비전 없음
	TopLeagueWidth      float64           `json:"topLeagueWidth"`
}

// DefaultRatingConfig 기본 레이팅 설정
func DefaultRatingConfig() RatingConfig {
	return RatingConfig{
		InitialScore:        1500,
		ExpectationBase:     10,
		ExpectationDivisor:  400,
		ProvisionalMatches:  10,
		IntermediateMatches: 20,
		ProvisionalK:        40,
		IntermediateK:       32,
		EstablishedK:        24,
		Divisions:           5,
		Leagues: []LeagueThreshold{
			{League: LeagueBronze, Floor: 800},
			{League: LeagueSilver, Floor: 1200},
			{League: LeagueGold, Floor: 1400},
			{League: LeagueDiamond, Floor: 1600},
			{League: LeagueMaster, Floor: 1800},
		},
		TopLeagueWidth: 400,
	}
}

// ValidLeagues 리그가 하나 이상이고 하한이 엄격히 오름차순인지
func ValidLeagues(leagues []LeagueThreshold) bool {
	if len(leagues) == 0 {
		return false
	}
	for i := 1; i < len(leagues); i++ {
		if leagues[i].Floor <= leagues[i-1].Floor {
			return false
		}
	}
	return true
}
