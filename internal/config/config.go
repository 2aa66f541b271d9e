package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/internal/service"
)

type Config struct {
	// Server
	Port            string        `env:"PORT" envDefault:"8080"`
	Env             string        `env:"ENV" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis (비우면 outbox, 분산 락, 이벤트 릴레이, 채팅 제한 비활성)
	RedisURL string `env:"REDIS_URL"`

	// JWT
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`

	// Match
	TimeBudget        time.Duration `env:"MATCH_TIME_BUDGET" envDefault:"60s"`
	DisconnectGrace   time.Duration `env:"DISCONNECT_GRACE" envDefault:"30s"`
	RequeueAfterMatch bool          `env:"REQUEUE_AFTER_MATCH" envDefault:"false"`
	SettleTimeout     time.Duration `env:"SETTLE_TIMEOUT" envDefault:"10s"`
	ChatLimit         int           `env:"CHAT_LIMIT" envDefault:"5"`
	ChatWindow        time.Duration `env:"CHAT_WINDOW" envDefault:"10s"`

	// Matchmaking
	QueueInterval        time.Duration `env:"QUEUE_INTERVAL" envDefault:"2s"`
	QueueToleranceBase   float64       `env:"QUEUE_TOLERANCE_BASE" envDefault:"50"`
	QueueToleranceGrowth float64       `env:"QUEUE_TOLERANCE_GROWTH" envDefault:"10"`
	QueueToleranceMax    float64       `env:"QUEUE_TOLERANCE_MAX" envDefault:"400"`
	QueueEntryTTL        time.Duration `env:"QUEUE_ENTRY_TTL" envDefault:"10m"`
	QueuePairOnEnqueue   bool          `env:"QUEUE_PAIR_ON_ENQUEUE" envDefault:"true"`

	// Rating (DB rating_config 행이 있으면 그 값이 우선)
	RatingInitialScore float64 `env:"RATING_INITIAL_SCORE" envDefault:"1500"`
	RatingDivisor      float64 `env:"RATING_DIVISOR" envDefault:"400"`

	// Scheduled jobs (0 이면 비활성)
	SettleRetryInterval time.Duration `env:"SETTLE_RETRY_INTERVAL" envDefault:"30s"`
	OutboxInterval      time.Duration `env:"OUTBOX_INTERVAL" envDefault:"15s"`
	OutboxMaxRetries    int           `env:"OUTBOX_MAX_RETRIES" envDefault:"5"`
	ChallengerInterval  time.Duration `env:"CHALLENGER_INTERVAL" envDefault:"1h"`
	ChallengerSlots     int           `env:"CHALLENGER_SLOTS" envDefault:"50"`

	// Report archive (S3_BUCKET 이 없으면 ARCHIVE_DIR 로컬 저장, 둘 다 없으면 비활성)
	ArchiveDir        string `env:"ARCHIVE_DIR"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" envDefault:"auto"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL"`
}

// Load .env 를 읽은 뒤 환경 변수로 Config 채움
func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 값 범위 확인
func (c *Config) Validate() error {
	if c.TimeBudget <= 0 {
		return fmt.Errorf("MATCH_TIME_BUDGET must be positive")
	}
	if c.DisconnectGrace < 0 {
		return fmt.Errorf("DISCONNECT_GRACE must not be negative")
	}
	if c.QueueToleranceBase < 0 || c.QueueToleranceGrowth < 0 {
		return fmt.Errorf("queue tolerance must not be negative")
	}
	if c.QueueToleranceMax > 0 && c.QueueToleranceMax < c.QueueToleranceBase {
		return fmt.Errorf("QUEUE_TOLERANCE_MAX must be at least QUEUE_TOLERANCE_BASE")
	}
	if c.ChallengerSlots < 0 {
		return fmt.Errorf("CHALLENGER_SLOTS must not be negative")
	}
	if c.Env == "production" && c.JWTSecret == "your-secret-key" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// MatchService 매치 운영 설정
func (c *Config) MatchService() service.MatchServiceConfig {
	return service.MatchServiceConfig{
		TimeBudget:        c.TimeBudget,
		DisconnectGrace:   c.DisconnectGrace,
		RequeueAfterMatch: c.RequeueAfterMatch,
		SettleTimeout:     c.SettleTimeout,
		MessageLimit:      c.ChatLimit,
		MessageWindow:     c.ChatWindow,
	}
}

// Matchmaking 대기열 설정
func (c *Config) Matchmaking() service.MatchmakingConfig {
	return service.MatchmakingConfig{
		Interval:        c.QueueInterval,
		ToleranceBase:   c.QueueToleranceBase,
		ToleranceGrowth: c.QueueToleranceGrowth,
		ToleranceMax:    c.QueueToleranceMax,
		EntryTTL:        c.QueueEntryTTL,
		PairOnEnqueue:   c.QueuePairOnEnqueue,
	}
}

// Scheduler 주기 작업 설정
func (c *Config) Scheduler() service.SchedulerConfig {
	return service.SchedulerConfig{
		SettleRetryInterval: c.SettleRetryInterval,
		OutboxInterval:      c.OutboxInterval,
		ChallengerInterval:  c.ChallengerInterval,
	}
}

// Rating 환경 변수 기반 레이팅 기본값
func (c *Config) Rating() models.RatingConfig {
	rc := models.DefaultRatingConfig()
	rc.InitialScore = c.RatingInitialScore
	rc.ExpectationDivisor = c.RatingDivisor
	return rc
}
