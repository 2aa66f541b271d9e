package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/api/handlers"
	"github.com/rl-arena/duel-arena-backend/internal/api/middleware"
	"github.com/rl-arena/duel-arena-backend/internal/service"
	"github.com/rl-arena/duel-arena-backend/internal/websocket"
	jwtutil "github.com/rl-arena/duel-arena-backend/pkg/jwt"
)

// Dependencies 라우터가 사용하는 서비스 묶음 (main 에서 생성)
type Dependencies struct {
	Env                string
	CORSAllowedOrigins []string
	JWT                *jwtutil.JWTManager
	Players            *service.PlayerService
	Matches            *service.MatchService
	Hub                *websocket.Hub
	Limits             *middleware.Limits
	Health             *handlers.HealthHandler
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.CORSAllowedOrigins))

	authHandler := handlers.NewAuthHandler(deps.Players, deps.JWT)
	playerHandler := handlers.NewPlayerHandler(deps.Players, deps.Matches)
	matchHandler := handlers.NewMatchHandler(deps.Matches)
	leaderboardHandler := handlers.NewLeaderboardHandler(deps.Matches)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	auth := middleware.Auth(deps.JWT)
	limits := deps.Limits

	// Health check
	router.GET("/health", deps.Health.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(limits.General)
	{
		// WebSocket endpoint
		v1.GET("/ws", auth, wsHandler.HandleWebSocket)

		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/register", authHandler.Register)
		}

		// Queue routes
		queue := v1.Group("/queue")
		queue.Use(auth)
		{
			queue.GET("", matchHandler.QueueStatus)
			queue.POST("", limits.Queue, matchHandler.JoinQueue)
			queue.DELETE("", matchHandler.LeaveQueue)
		}

		// Match routes
		matches := v1.Group("/matches")
		{
			matches.GET("/:id", matchHandler.GetMatch)
			matches.GET("/:id/report", matchHandler.GetReport)
			matches.POST("/:id/moves", auth, limits.Moves, matchHandler.SubmitMove)
			matches.POST("/:id/forfeit", auth, matchHandler.Forfeit)
			matches.POST("/:id/messages", auth, limits.Moves, matchHandler.PostMessage)
		}

		// Rating routes
		v1.GET("/ratings/:playerId", leaderboardHandler.GetRating)
		v1.GET("/leaderboard", leaderboardHandler.GetLeaderboard)

		// Player routes
		players := v1.Group("/players")
		{
			players.GET("/me", auth, playerHandler.GetCurrentPlayer)
			players.GET("/:playerId/matches", matchHandler.ListPlayerMatches)
		}
	}

	return router
}
