package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/duel-arena-backend/pkg/logger"
	"github.com/rl-arena/duel-arena-backend/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Capacity   int64                     // Maximum burst
	RefillRate float64                   // Tokens per second
	KeyFunc    func(*gin.Context) string // Function to extract rate limit key
}

// RedisRateLimitConfig Redis 기반 Rate Limit 설정
type RedisRateLimitConfig struct {
	Limiter *ratelimit.RedisRateLimiter
	Limit   int           // 윈도우 내 최대 요청 수
	Window  time.Duration // 윈도우 크기
	KeyFunc func(*gin.Context) string
}

// DefaultKeyFunc uses player ID if authenticated, otherwise IP address
func DefaultKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get(ContextUserID); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// IPKeyFunc uses only IP address (for public endpoints)
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// UserKeyFunc uses only player ID (requires authentication)
func UserKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get(ContextUserID); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return ""
}

// RateLimitMiddleware creates an in-memory rate limiting middleware.
// The limiter is returned so the caller can stop its cleanup loop.
func RateLimitMiddleware(config RateLimitConfig) (gin.HandlerFunc, *ratelimit.RateLimiter) {
	limiter := ratelimit.NewRateLimiter(config.Capacity, config.RefillRate, nil)
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	return limitWith(limiter, config), limiter
}

func limitWith(limiter *ratelimit.RateLimiter, config RateLimitConfig) gin.HandlerFunc {
	limit := strconv.FormatInt(limiter.Capacity(), 10)

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", limit)

		if !limiter.Allow(key) {
			retryAfter := 1
			if config.RefillRate > 0 && config.RefillRate < 1 {
				retryAfter = int(1/config.RefillRate + 0.5)
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     fmt.Sprintf("Too many requests. Limit: %s burst, %.2f per second", limit, config.RefillRate),
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RedisRateLimitMiddleware Redis 기반 분산 Rate Limiting 미들웨어
func RedisRateLimitMiddleware(config RedisRateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			c.Abort()
			return
		}

		allowed, info, err := config.Limiter.AllowWithInfo(c.Request.Context(), key, config.Limit, config.Window)
		if err != nil {
			// Redis 오류 시 요청 허용 (Fail-open)
			logger.Warn("Redis rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(info.ResetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     fmt.Sprintf("Too many requests. Limit: %d per %v", config.Limit, config.Window),
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Limits 라우터가 사용하는 엔드포인트별 Rate Limit 묶음
type Limits struct {
	Queue   gin.HandlerFunc
	Moves   gin.HandlerFunc
	General gin.HandlerFunc

	stops []func()
}

// Stop 인메모리 리미터의 정리 루프 종료
func (l *Limits) Stop() {
	for _, stop := range l.stops {
		stop()
	}
}

// NewLimits Redis 리미터가 있으면 분산 제한, 없으면 인스턴스별 인메모리 제한.
//   - queue: 10회/분 (플레이어)
//   - moves: 초당 5회, 버스트 10 (플레이어)
//   - general: 초당 10회, 버스트 100 (플레이어 또는 IP)
func NewLimits(redisLimiter *ratelimit.RedisRateLimiter) *Limits {
	if redisLimiter != nil {
		return &Limits{
			Queue: RedisRateLimitMiddleware(RedisRateLimitConfig{
				Limiter: redisLimiter, Limit: 10, Window: time.Minute, KeyFunc: UserKeyFunc,
			}),
			Moves: RedisRateLimitMiddleware(RedisRateLimitConfig{
				Limiter: redisLimiter, Limit: 10, Window: 2 * time.Second, KeyFunc: UserKeyFunc,
			}),
			General: RedisRateLimitMiddleware(RedisRateLimitConfig{
				Limiter: redisLimiter, Limit: 100, Window: 10 * time.Second, KeyFunc: DefaultKeyFunc,
			}),
		}
	}

	l := &Limits{}
	add := func(cfg RateLimitConfig) gin.HandlerFunc {
		handler, limiter := RateLimitMiddleware(cfg)
		l.stops = append(l.stops, limiter.Stop)
		return handler
	}
	l.Queue = add(RateLimitConfig{Capacity: 10, RefillRate: 10.0 / 60, KeyFunc: UserKeyFunc})
	l.Moves = add(RateLimitConfig{Capacity: 10, RefillRate: 5, KeyFunc: UserKeyFunc})
	l.General = add(RateLimitConfig{Capacity: 100, RefillRate: 10, KeyFunc: DefaultKeyFunc})
	return l
}
