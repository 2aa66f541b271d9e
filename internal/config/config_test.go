package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.TimeBudget)
	assert.Equal(t, 30*time.Second, cfg.DisconnectGrace)
	assert.False(t, cfg.RequeueAfterMatch)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 1500.0, cfg.Rating().InitialScore)
	assert.Equal(t, 50, cfg.ChallengerSlots)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MATCH_TIME_BUDGET", "90s")
	t.Setenv("DISCONNECT_GRACE", "0s")
	t.Setenv("REQUEUE_AFTER_MATCH", "true")
	t.Setenv("QUEUE_TOLERANCE_BASE", "25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://arena.example.com")
	t.Setenv("RATING_DIVISOR", "480")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.MatchService().TimeBudget)
	assert.Zero(t, cfg.MatchService().DisconnectGrace)
	assert.True(t, cfg.MatchService().RequeueAfterMatch)
	assert.Equal(t, 25.0, cfg.Matchmaking().ToleranceBase)
	assert.Equal(t, []string{"https://arena.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 480.0, cfg.Rating().ExpectationDivisor)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"잘못된 duration", "MATCH_TIME_BUDGET", "soon"},
		{"시간 0", "MATCH_TIME_BUDGET", "0s"},
		{"음수 유예", "DISCONNECT_GRACE", "-1s"},
		{"최대 허용치가 기본보다 작음", "QUEUE_TOLERANCE_MAX", "10"},
		{"운영 환경 기본 시크릿", "ENV", "production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
