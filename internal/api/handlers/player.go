package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/service"
)

type PlayerHandler struct {
	playerService *service.PlayerService
	matchService  *service.MatchService
}

func NewPlayerHandler(playerService *service.PlayerService, matchService *service.MatchService) *PlayerHandler {
	return &PlayerHandler{
		playerService: playerService,
		matchService:  matchService,
	}
}

// GetCurrentPlayer 현재 플레이어 정보, 레이팅, 대기열 상태
func (h *PlayerHandler) GetCurrentPlayer(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	player, err := h.playerService.GetPlayer(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err, "Failed to get player")
		return
	}

	skill, err := h.matchService.LoadSkill(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err, "Failed to get rating")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"player": player,
		"rating": h.matchService.DisplayRating(skill),
		"stats":  skill.Stats(),
		"queue":  h.matchService.QueueStatus(playerID),
	})
}
