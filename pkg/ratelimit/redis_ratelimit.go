package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// 원자적 Token Bucket: 리필 후 토큰 하나를 소비하고 {allowed, remaining, reset} 반환
var tokenBucketScript = redis.NewScript(`
	local tokens_key = KEYS[1] .. ":tokens"
	local timestamp_key = KEYS[1] .. ":timestamp"
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last_update = tonumber(redis.call('GET', timestamp_key))
	if tokens == nil or last_update == nil then
		tokens = limit
		last_update = now
	end

	local elapsed = math.max(0, now - last_update)
	local new_tokens = math.min(limit, tokens + (elapsed * limit / window))

	local allowed = 0
	if new_tokens >= 1 then
		new_tokens = new_tokens - 1
		allowed = 1
	end

	local ttl = math.ceil(window * 2 / 1000)
	redis.call('SET', tokens_key, tostring(new_tokens), 'EX', ttl)
	redis.call('SET', timestamp_key, now, 'EX', ttl)

	local reset = now + math.ceil((1 - math.min(new_tokens, 1)) * window / limit)
	return {allowed, math.floor(new_tokens), reset}
`)

// RedisRateLimiter Redis 기반 분산 Rate Limiter (Token Bucket)
type RedisRateLimiter struct {
	client       *redis.Client
	clock        clockwork.Clock
	keyPrefix    string
	defaultLimit int
	defaultTTL   time.Duration
}

// RedisRateLimiterConfig Redis Rate Limiter 설정
type RedisRateLimiterConfig struct {
	KeyPrefix    string        // 예: "ratelimit:"
	DefaultLimit int           // 윈도우당 기본 요청 수
	DefaultTTL   time.Duration // 기본 윈도우
}

// NewRedisRateLimiter 공유 Redis 클라이언트로 Rate Limiter 생성
func NewRedisRateLimiter(client *redis.Client, config RedisRateLimiterConfig) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 60
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Minute
	}

	return &RedisRateLimiter{
		client:       client,
		clock:        clockwork.NewRealClock(),
		keyPrefix:    config.KeyPrefix,
		defaultLimit: config.DefaultLimit,
		defaultTTL:   config.DefaultTTL,
	}
}

// SetClock 시각 소스 교체 (테스트용)
func (r *RedisRateLimiter) SetClock(clock clockwork.Clock) {
	r.clock = clock
}

// Allow 요청 허용 여부 확인.
// key: 대상 식별자 (예: player ID, IP), limit: 윈도우 내 최대 요청 수
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := r.AllowWithInfo(ctx, key, limit, window)
	return allowed, err
}

// AllowWithInfo 요청 허용 여부와 상세 정보 반환
func (r *RedisRateLimiter) AllowWithInfo(ctx context.Context, key string, limit int, window time.Duration) (bool, *RateLimitInfo, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if window <= 0 {
		window = r.defaultTTL
	}

	now := r.clock.Now().UnixMilli()
	result, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		limit, window.Milliseconds(), now,
	).Result()
	if err != nil {
		return false, nil, fmt.Errorf("redis script execution failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return false, nil, fmt.Errorf("invalid script result")
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetMs, _ := values[2].(int64)

	return allowed == 1, &RateLimitInfo{
		Limit:     limit,
		Remaining: int(remaining),
		ResetTime: time.UnixMilli(resetMs),
	}, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	redisKey := r.keyPrefix + key
	if err := r.client.Del(ctx, redisKey+":tokens", redisKey+":timestamp").Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// RateLimitInfo Rate Limit 상세 정보
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}
