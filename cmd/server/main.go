package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/duel-arena-backend/internal/api"
	"github.com/rl-arena/duel-arena-backend/internal/api/handlers"
	"github.com/rl-arena/duel-arena-backend/internal/api/middleware"
	"github.com/rl-arena/duel-arena-backend/internal/config"
	"github.com/rl-arena/duel-arena-backend/internal/repository"
	"github.com/rl-arena/duel-arena-backend/internal/service"
	"github.com/rl-arena/duel-arena-backend/internal/websocket"
	"github.com/rl-arena/duel-arena-backend/pkg/database"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	jwtutil "github.com/rl-arena/duel-arena-backend/pkg/jwt"
	"github.com/rl-arena/duel-arena-backend/pkg/logger"
	"github.com/rl-arena/duel-arena-backend/pkg/ratelimit"
	"github.com/rl-arena/duel-arena-backend/pkg/storage"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	if err := logger.Init(cfg.LogLevel, cfg.Env); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Duel Arena Backend",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 데이터베이스 연결
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	logger.Info("Database connection established")

	// 레이팅 설정: 환경 변수 기본값 위에 DB 설정을 덮어쓴다
	configRepo := repository.NewConfigRepository(db)
	ratingConfig, err := configRepo.LoadRatingConfig(ctx, cfg.Rating())
	if err != nil {
		logger.Fatal("Failed to load rating config", "error", err)
	}

	playerRepo := repository.NewPlayerRepository(db)
	skillRepo := repository.NewSkillRepository(db)
	matchRepo := repository.NewMatchRepository(db)

	elo := service.NewELOService(ratingConfig)
	registry := service.NewMatchRegistry(elo, nil, logger.Named("registry"))

	hub := websocket.NewHub(cfg.CORSAllowedOrigins, logger.Named("websocket"))

	matchService := service.NewMatchService(registry, elo, skillRepo, matchRepo, hub,
		cfg.MatchService(), nil, logger.Named("match"))
	matchmakingService := service.NewMatchmakingService(playerRepo, registry, matchService,
		cfg.Matchmaking(), nil, logger.Named("matchmaking"))
	matchService.SetMatchmakingService(matchmakingService)
	hub.SetCommands(matchService)

	challengerService := service.NewChallengerService(skillRepo, elo, cfg.ChallengerSlots, logger.Named("challenger"))

	// Redis (선택): outbox, 분산 rate limit, 락, 인스턴스 간 이벤트 중계
	var (
		redisClient  *redis.Client
		redisLimiter *ratelimit.RedisRateLimiter
		outbox       *service.ReportOutbox
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}

		queue := distributed.NewRedisQueue(redisClient, "arena:reports", 10000)
		outbox = service.NewReportOutbox(queue, cfg.OutboxMaxRetries, logger.Named("outbox"))
		matchService.SetOutbox(outbox)

		redisLimiter = ratelimit.NewRedisRateLimiter(redisClient, ratelimit.RedisRateLimiterConfig{
			KeyPrefix: "arena:ratelimit:",
		})
		matchService.SetMessageLimiter(redisLimiter)

		relay := distributed.NewEventRelay(redisClient, "arena:events", logger.Named("relay"))
		hub.SetRelay(relay)
		challengerService.SetLocker(distributed.NewRedisLockManager(redisClient, relay.InstanceID()))

		logger.Info("Redis connection established")
	} else {
		logger.Warn("REDIS_URL not set, running as a single instance")
	}

	// 보고서 보관소 (선택)
	if archive, err := newArchive(ctx, cfg); err != nil {
		logger.Fatal("Failed to set up report archive", "error", err)
	} else if archive != nil {
		matchService.SetArchiver(archive)
	}

	go hub.Run(ctx)
	matchmakingService.Start()

	scheduler, err := service.NewScheduler(matchService, outbox, challengerService,
		cfg.Scheduler(), logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("Failed to create scheduler", "error", err)
	}
	scheduler.Start()

	limits := middleware.NewLimits(redisLimiter)

	checks := map[string]func(ctx context.Context) error{
		"database": db.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	health := handlers.NewHealthHandler(checks, func() gin.H {
		return gin.H{
			"liveMatches": registry.Len(),
			"queued":      matchmakingService.Len(),
			"connections": hub.ClientCount(),
		}
	})

	// 라우터 설정
	router := api.SetupRouter(api.Dependencies{
		Env:                cfg.Env,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		JWT:                jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		Players:            service.NewPlayerService(playerRepo),
		Matches:            matchService,
		Hub:                hub,
		Limits:             limits,
		Health:             health,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// 새 매치가 생기지 않게 대기열부터 멈춘 뒤 진행 중인 매치를 정산
	matchmakingService.Stop()
	if err := matchService.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to settle live matches", "error", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("Failed to stop scheduler", "error", err)
	}
	limits.Stop()
	stop()

	logger.Info("Server exited")
}

// newArchive S3_BUCKET 이 있으면 S3, ARCHIVE_DIR 이 있으면 로컬 디스크, 둘 다 없으면 nil
func newArchive(ctx context.Context, cfg *config.Config) (*service.ReportArchive, error) {
	switch {
	case cfg.S3Bucket != "":
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Archiving match reports to S3", "bucket", cfg.S3Bucket)
		return service.NewReportArchive(store, ""), nil

	case cfg.ArchiveDir != "":
		logger.Info("Archiving match reports to disk", "dir", cfg.ArchiveDir)
		return service.NewReportArchive(storage.NewLocalStore(cfg.ArchiveDir), ""), nil
	}
	return nil, nil
}
