package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/api/middleware"
	"github.com/rl-arena/duel-arena-backend/internal/service"
	"github.com/rl-arena/duel-arena-backend/pkg/logger"
)

// statusFor 서비스 에러를 HTTP 상태 코드로
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPlayerBanned):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError 에러 응답. 5xx 는 내부 메시지를 숨기고 로깅
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// currentPlayer Auth 미들웨어가 넣은 플레이어 ID
func currentPlayer(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return "", false
	}
	return userID, true
}
