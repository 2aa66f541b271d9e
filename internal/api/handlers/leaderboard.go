package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/internal/service"
)

type LeaderboardHandler struct {
	matchService *service.MatchService
}

func NewLeaderboardHandler(matchService *service.MatchService) *LeaderboardHandler {
	return &LeaderboardHandler{
		matchService: matchService,
	}
}

// LeaderboardEntry 순위표 한 줄
type LeaderboardEntry struct {
	Rank     int                  `json:"rank"`
	PlayerID string               `json:"playerId"`
	Matches  int                  `json:"matches"`
	Rating   models.DisplayRating `json:"rating"`
	Stats    models.MatchStats    `json:"stats"`
}

// GetLeaderboard 레이팅 순위 (?limit=50&offset=0)
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	skills, err := h.matchService.Leaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err, "Failed to get leaderboard")
		return
	}

	if offset < 0 {
		offset = 0
	}
	entries := make([]LeaderboardEntry, 0, len(skills))
	for i, ps := range skills {
		entries = append(entries, LeaderboardEntry{
			Rank:     offset + i + 1,
			PlayerID: ps.PlayerID,
			Matches:  ps.Skill.Matches,
			Rating:   h.matchService.DisplayRating(ps.Skill),
			Stats:    ps.Skill.Stats(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": entries,
		"total":       len(entries),
	})
}

// GetRating 플레이어 표시용 레이팅과 전적
func (h *LeaderboardHandler) GetRating(c *gin.Context) {
	playerID := c.Param("playerId")

	skill, err := h.matchService.LoadSkill(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err, "Failed to get rating")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId": playerID,
		"rating":   h.matchService.DisplayRating(skill),
		"stats":    skill.Stats(),
	})
}
