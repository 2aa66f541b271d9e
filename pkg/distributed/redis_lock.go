package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
	ErrLockLost        = errors.New("lock lost while job was running")
)

// 값이 일치할 때만 삭제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// 값이 일치할 때만 만료 시각 갱신
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisLock 획득한 락 하나
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
}

// RedisLockManager 인스턴스 간 배치 작업(챌린저 재계산 등) 단일 실행 보장
type RedisLockManager struct {
	client *redis.Client
	owner  string
}

// NewRedisLockManager owner 는 락 값으로 쓰이는 인스턴스 식별자. 비어 있으면 새로 만든다
func NewRedisLockManager(client *redis.Client, owner string) *RedisLockManager {
	if owner == "" {
		owner = uuid.New().String()
	}
	return &RedisLockManager{
		client: client,
		owner:  owner,
	}
}

// Owner 락 값
func (m *RedisLockManager) Owner() string {
	return m.owner
}

// AcquireLock SET NX PX. 이미 잡혀 있으면 ErrLockNotAcquired
func (m *RedisLockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, m.owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &RedisLock{client: m.client, key: key, owner: m.owner}, nil
}

// WithLock 락을 잡은 동안 fn 실행. ttl/3 마다 만료를 연장하고,
// 연장에 실패하면 fn 의 ctx 를 취소한 뒤 ErrLockLost 를 돌려준다.
func (m *RedisLockManager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := m.AcquireLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	defer close(stop)
	go lock.keepAlive(jobCtx, ttl, stop, cancel)

	err = fn(jobCtx)
	if cause := context.Cause(jobCtx); errors.Is(cause, ErrLockLost) {
		return ErrLockLost
	}
	return err
}

func (l *RedisLock) keepAlive(ctx context.Context, ttl time.Duration, stop <-chan struct{}, cancel context.CancelCauseFunc) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Extend(ctx, ttl); err != nil {
				cancel(fmt.Errorf("%w: %v", ErrLockLost, err))
				return
			}
		}
	}
}

// Release 락 해제. 다른 인스턴스가 이미 가져갔으면 ErrLockNotHeld
func (l *RedisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 만료를 ttl 뒤로 미룬다
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsHeld 아직 이 인스턴스의 락인지
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.owner, nil
}
