package distributed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newTestRedis(t *testing.T) *redis.Client {
	_, client := newTestRedisServer(t)
	return client
}

func setupRedisQueue(t *testing.T) (*RedisQueue, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	queue := NewRedisQueue(newTestRedis(t), "test_queue", 0)
	queue.SetClock(clock)
	return queue, clock
}

type reportPayload struct {
	MatchID string `json:"matchId"`
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	queue, _ := setupRedisQueue(t)
	ctx := context.Background()

	item, err := NewQueueItem(uuid.New().String(), reportPayload{MatchID: "m1"}, 3)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, item))

	size, err := queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	dequeued, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, item.ID, dequeued.ID)

	var payload reportPayload
	require.NoError(t, dequeued.Decode(&payload))
	assert.Equal(t, "m1", payload.MatchID)

	size, err = queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	processing, err := queue.ProcessingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processing)

	_, err = queue.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRedisQueue_Priority(t *testing.T) {
	queue, _ := setupRedisQueue(t)
	ctx := context.Background()

	for _, item := range []*QueueItem{
		{ID: "item1", Priority: 50, MaxRetries: 3},
		{ID: "item2", Priority: 100, MaxRetries: 3},
		{ID: "item3", Priority: 10, MaxRetries: 3},
		{ID: "item4", Priority: 75, MaxRetries: 3},
	} {
		require.NoError(t, queue.Enqueue(ctx, item))
	}

	for _, expectedID := range []string{"item2", "item4", "item1", "item3"} {
		dequeued, err := queue.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, expectedID, dequeued.ID, "Priority order incorrect")
	}
}

func TestRedisQueue_Complete(t *testing.T) {
	queue, _ := setupRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, &QueueItem{ID: "a", Priority: 100, MaxRetries: 3}))
	dequeued, err := queue.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Complete(ctx, dequeued.ID))

	processing, err := queue.ProcessingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)
}

func TestRedisQueue_RetryLowersPriority(t *testing.T) {
	queue, _ := setupRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, &QueueItem{ID: "a", Priority: 100, MaxRetries: 3}))
	dequeued, err := queue.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Retry(ctx, dequeued, errors.New("db down")))

	retried, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", retried.ID)
	assert.Equal(t, 1, retried.Retries)
	assert.Equal(t, 90, retried.Priority)
	assert.Equal(t, "db down", retried.LastError)
}

func TestRedisQueue_MaxRetriesMovesToDLQ(t *testing.T) {
	queue, _ := setupRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, &QueueItem{ID: "poison", Priority: 100, MaxRetries: 2}))

	first, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, queue.Retry(ctx, first, nil))

	second, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, queue.Retry(ctx, second, errors.New("bad payload")))

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &QueueStats{QueueSize: 0, ProcessingCount: 0, DLQSize: 1}, stats)

	dead, err := queue.PeekDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "max retries exceeded", dead[0].Reason)
	assert.Equal(t, "poison", dead[0].Item.ID)
	assert.Equal(t, 2, dead[0].FinalRetry)
}

func TestRedisQueue_RecoverStale(t *testing.T) {
	queue, clock := setupRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, &QueueItem{ID: "a", Priority: 100, MaxRetries: 3}))
	_, err := queue.Dequeue(ctx)
	require.NoError(t, err)

	recovered, err := queue.RecoverStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	clock.Advance(2 * time.Minute)
	recovered, err = queue.RecoverStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.QueueSize)
	assert.Equal(t, int64(0), stats.ProcessingCount)
}

func TestRedisQueue_MaxSize(t *testing.T) {
	queue := NewRedisQueue(newTestRedis(t), "limited_queue", 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Enqueue(ctx, &QueueItem{ID: fmt.Sprintf("item%d", i), MaxRetries: 3}))
	}

	err := queue.Enqueue(ctx, &QueueItem{ID: "item4", MaxRetries: 3})
	assert.ErrorIs(t, err, ErrQueueFull)
}
