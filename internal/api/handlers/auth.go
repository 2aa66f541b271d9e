package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/internal/service"
	jwtutil "github.com/rl-arena/duel-arena-backend/pkg/jwt"
	"github.com/rl-arena/duel-arena-backend/pkg/logger"
)

type AuthHandler struct {
	playerService *service.PlayerService
	jwtManager    *jwtutil.JWTManager
}

func NewAuthHandler(playerService *service.PlayerService, jwtManager *jwtutil.JWTManager) *AuthHandler {
	return &AuthHandler{
		playerService: playerService,
		jwtManager:    jwtManager,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	DisplayName string `json:"displayName" binding:"max=50"`
	Password    string `json:"password" binding:"required,min=6"`
}

type AuthResponse struct {
	Token  string         `json:"token"`
	Player *models.Player `json:"player"`
}

// Login 로그인
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	player, err := h.playerService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err, "Failed to login")
		return
	}

	h.respondWithToken(c, http.StatusOK, player)
	logger.Info("Player logged in", "playerId", player.ID)
}

// Register 회원가입
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	player, err := h.playerService.Register(c.Request.Context(), req.Username, req.DisplayName, req.Password)
	if err != nil {
		respondError(c, err, "Failed to register player")
		return
	}

	h.respondWithToken(c, http.StatusCreated, player)
	logger.Info("Player registered", "playerId", player.ID)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, player *models.Player) {
	token, err := h.jwtManager.Generate(player.ID, player.DisplayName)
	if err != nil {
		logger.Error("Failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(status, AuthResponse{
		Token:  token,
		Player: player,
	})
}
