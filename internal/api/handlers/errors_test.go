package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/api/middleware"
	"github.com/rl-arena/duel-arena-backend/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"잘못된 로그인", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"제재", service.ErrPlayerBanned, http.StatusForbidden},
		{"빈도 제한", service.ErrRateLimited, http.StatusTooManyRequests},
		{"잘못된 숫자", service.ErrInvalidChoice, http.StatusBadRequest},
		{"감싼 검증 에러", fmt.Errorf("submit: %w", service.ErrInvalidChoice), http.StatusBadRequest},
		{"없는 매치", service.ErrMatchNotFound, http.StatusNotFound},
		{"차례 아님", service.ErrNotYourTurn, http.StatusConflict},
		{"중복 가입", service.ErrUserAlreadyExists, http.StatusConflict},
		{"알 수 없는 에러", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)

	respondError(c, errors.New("pq: connection refused"), "Failed to get leaderboard")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to get leaderboard")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestCurrentPlayer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	_, ok := currentPlayer(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Set(middleware.ContextUserID, "player-1")
	id, ok := currentPlayer(c)
	assert.True(t, ok)
	assert.Equal(t, "player-1", id)
}
