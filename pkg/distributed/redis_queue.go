package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	ErrQueueFull  = errors.New("queue is full")
)

const timestampSuffix = ":timestamp"

// QueueItem 큐에 들어가는 작업. Payload 는 호출자가 정한 JSON.
type QueueItem struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"` // 높을수록 먼저
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewQueueItem payload 를 JSON 으로 담은 작업 생성
func NewQueueItem(id string, payload interface{}, maxRetries int) (*QueueItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &QueueItem{ID: id, Payload: data, MaxRetries: maxRetries}, nil
}

// Decode Payload 역직렬화
func (i *QueueItem) Decode(v interface{}) error {
	return json.Unmarshal(i.Payload, v)
}

// DeadLetter DLQ 에 보관되는 항목
type DeadLetter struct {
	Item       QueueItem `json:"item"`
	Reason     string    `json:"reason"`
	MovedAt    time.Time `json:"moved_at"`
	FinalRetry int       `json:"final_retry"`
}

// RedisQueue Redis 기반 우선순위 큐 (처리 중 목록 + DLQ)
type RedisQueue struct {
	client        *redis.Client
	clock         clockwork.Clock
	queueKey      string // Sorted Set
	processingKey string // Hash
	dlqKey        string // List
	maxSize       int    // 0 = 무제한
}

// NewRedisQueue Redis Queue 생성
func NewRedisQueue(client *redis.Client, queueName string, maxSize int) *RedisQueue {
	return &RedisQueue{
		client:        client,
		clock:         clockwork.NewRealClock(),
		queueKey:      fmt.Sprintf("queue:%s", queueName),
		processingKey: fmt.Sprintf("queue:%s:processing", queueName),
		dlqKey:        fmt.Sprintf("queue:%s:dlq", queueName),
		maxSize:       maxSize,
	}
}

// SetClock 시각 소스 교체 (테스트용)
func (q *RedisQueue) SetClock(clock clockwork.Clock) {
	q.clock = clock
}

// Enqueue 큐에 작업 추가
func (q *RedisQueue) Enqueue(ctx context.Context, item *QueueItem) error {
	if q.maxSize > 0 {
		size, err := q.client.ZCard(ctx, q.queueKey).Result()
		if err != nil {
			return fmt.Errorf("failed to get queue size: %w", err)
		}
		if int(size) >= q.maxSize {
			return ErrQueueFull
		}
	}

	now := q.clock.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	// ZPOPMIN 으로 꺼내므로 priority 를 음수 score 로 저장
	if err := q.client.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  float64(-item.Priority),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	return nil
}

var dequeueScript = redis.NewScript(`
	local items = redis.call('ZPOPMIN', KEYS[1], 1)
	if #items == 0 then
		return nil
	end

	local item_data = items[1]
	local item_id = cjson.decode(item_data).id

	redis.call('HSET', KEYS[2], item_id, item_data)
	redis.call('HSET', KEYS[2], item_id .. ':timestamp', ARGV[1])
	return item_data
`)

// Dequeue 우선순위가 가장 높은 작업을 꺼내 처리 중 목록으로 옮긴다
func (q *RedisQueue) Dequeue(ctx context.Context) (*QueueItem, error) {
	result, err := dequeueScript.Run(ctx, q.client,
		[]string{q.queueKey, q.processingKey},
		q.clock.Now().Unix(),
	).Result()
	if errors.Is(err, redis.Nil) || (err == nil && result == nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected dequeue result %T", result)
	}

	var item QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &item, nil
}

// Complete 처리 완료
func (q *RedisQueue) Complete(ctx context.Context, itemID string) error {
	pipe := q.client.Pipeline()
	pipe.HDel(ctx, q.processingKey, itemID)
	pipe.HDel(ctx, q.processingKey, itemID+timestampSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}
	return nil
}

// Retry 실패한 작업을 낮은 우선순위로 되돌린다. 한도를 넘으면 DLQ 로 보낸다.
func (q *RedisQueue) Retry(ctx context.Context, item *QueueItem, cause error) error {
	item.Retries++
	if cause != nil {
		item.LastError = cause.Error()
	}

	if item.Retries >= item.MaxRetries {
		return q.MoveToDLQ(ctx, item, "max retries exceeded")
	}

	if err := q.Complete(ctx, item.ID); err != nil {
		return err
	}

	item.Priority -= 10
	return q.Enqueue(ctx, item)
}

// MoveToDLQ Dead Letter Queue 로 이동
func (q *RedisQueue) MoveToDLQ(ctx context.Context, item *QueueItem, reason string) error {
	data, err := json.Marshal(DeadLetter{
		Item:       *item,
		Reason:     reason,
		MovedAt:    q.clock.Now(),
		FinalRetry: item.Retries,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	if err := q.client.LPush(ctx, q.dlqKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}
	return q.Complete(ctx, item.ID)
}

// RecoverStale staleTimeout 이상 처리 중인 작업을 큐로 되돌린다 (처리 중 프로세스가 죽은 경우)
func (q *RedisQueue) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	items, err := q.client.HGetAll(ctx, q.processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	recovered := 0
	now := q.clock.Now().Unix()

	for key, value := range items {
		if strings.HasSuffix(key, timestampSuffix) {
			continue
		}

		startedAt, err := strconv.ParseInt(items[key+timestampSuffix], 10, 64)
		if err != nil {
			continue
		}
		if now-startedAt < int64(staleTimeout.Seconds()) {
			continue
		}

		var item QueueItem
		if err := json.Unmarshal([]byte(value), &item); err != nil {
			continue
		}
		if err := q.Retry(ctx, &item, errors.New("processing timed out")); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Size 대기 중인 작업 수
func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey).Result()
}

// ProcessingCount 처리 중인 작업 수
func (q *RedisQueue) ProcessingCount(ctx context.Context) (int64, error) {
	count, err := q.client.HLen(ctx, q.processingKey).Result()
	if err != nil {
		return 0, err
	}
	// 작업마다 timestamp 필드가 하나씩 더 있다
	return count / 2, nil
}

// DLQSize DLQ 크기
func (q *RedisQueue) DLQSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dlqKey).Result()
}

// PeekDLQ DLQ 항목 조회 (제거하지 않음)
func (q *RedisQueue) PeekDLQ(ctx context.Context, count int64) ([]DeadLetter, error) {
	items, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]DeadLetter, 0, len(items))
	for _, raw := range items {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			continue
		}
		result = append(result, dl)
	}
	return result, nil
}

// QueueStats 큐 통계
type QueueStats struct {
	QueueSize       int64 `json:"queue_size"`
	ProcessingCount int64 `json:"processing_count"`
	DLQSize         int64 `json:"dlq_size"`
}

// GetStats 큐 통계 조회
func (q *RedisQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	queueSize, err := q.Size(ctx)
	if err != nil {
		return nil, err
	}
	processingCount, err := q.ProcessingCount(ctx)
	if err != nil {
		return nil, err
	}
	dlqSize, err := q.DLQSize(ctx)
	if err != nil {
		return nil, err
	}

	return &QueueStats{
		QueueSize:       queueSize,
		ProcessingCount: processingCount,
		DLQSize:         dlqSize,
	}, nil
}
