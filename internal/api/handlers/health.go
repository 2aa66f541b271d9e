package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler 의존성 상태 확인
type HealthHandler struct {
	checks map[string]func(ctx context.Context) error
	stats  func() gin.H
}

// NewHealthHandler checks: 이름 -> 핑 함수, stats: 응답에 붙일 런타임 수치 (nil 가능)
func NewHealthHandler(checks map[string]func(ctx context.Context) error, stats func() gin.H) *HealthHandler {
	return &HealthHandler{checks: checks, stats: stats}
}

// HealthCheck 모든 의존성이 응답하면 200, 하나라도 실패하면 503
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       "ok",
		"service":      "duel-arena-backend",
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.stats != nil {
		body["stats"] = h.stats()
	}

	c.JSON(status, body)
}
