package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/service"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

type MoveRequest struct {
	Number int `json:"number" binding:"required"`
}

type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// JoinQueue 대기열 참가
func (h *MatchHandler) JoinQueue(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	status, err := h.matchService.JoinQueue(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err, "Failed to join queue")
		return
	}

	c.JSON(http.StatusOK, status)
}

// LeaveQueue 대기열 이탈
func (h *MatchHandler) LeaveQueue(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	if err := h.matchService.LeaveQueue(playerID); err != nil {
		respondError(c, err, "Failed to leave queue")
		return
	}

	c.Status(http.StatusNoContent)
}

// QueueStatus 대기열 상태
func (h *MatchHandler) QueueStatus(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.matchService.QueueStatus(playerID))
}

// GetMatch 진행 중이면 스냅샷, 끝났으면 보고서
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id := c.Param("id")

	state, err := h.matchService.GetState(id)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"state": state})
		return
	}
	if !errors.Is(err, service.ErrMatchNotFound) {
		respondError(c, err, "Failed to get match")
		return
	}

	h.GetReport(c)
}

// GetReport 매치 보고서
func (h *MatchHandler) GetReport(c *gin.Context) {
	report, err := h.matchService.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get match report")
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// SubmitMove 숫자 선택
func (h *MatchHandler) SubmitMove(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.matchService.SubmitMove(c.Param("id"), playerID, req.Number); err != nil {
		respondError(c, err, "Failed to submit move")
		return
	}

	c.Status(http.StatusAccepted)
}

// Forfeit 기권
func (h *MatchHandler) Forfeit(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	if err := h.matchService.Forfeit(c.Param("id"), playerID); err != nil {
		respondError(c, err, "Failed to forfeit")
		return
	}

	c.Status(http.StatusAccepted)
}

// PostMessage 채팅
func (h *MatchHandler) PostMessage(c *gin.Context) {
	playerID, ok := currentPlayer(c)
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.matchService.PostMessage(c.Request.Context(), c.Param("id"), playerID, req.Text); err != nil {
		respondError(c, err, "Failed to post message")
		return
	}

	c.Status(http.StatusAccepted)
}

// ListPlayerMatches 플레이어의 매치 기록
func (h *MatchHandler) ListPlayerMatches(c *gin.Context) {
	playerID := c.Param("playerId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	reports, err := h.matchService.ListReports(c.Request.Context(), playerID, page, pageSize)
	if err != nil {
		respondError(c, err, "Failed to list matches")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId": playerID,
		"matches":  reports,
		"total":    len(reports),
	})
}
