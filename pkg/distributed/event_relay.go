package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayMessage 다른 서버 인스턴스에 접속한 플레이어에게 보낼 메시지
type RelayMessage struct {
	Origin    string          `json:"origin"` // 발행한 인스턴스 ID
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventRelay Redis Pub/Sub 기반 인스턴스 간 메시지 중계
type EventRelay struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
	channel    string

	mu       sync.Mutex
	stopChan chan struct{}
	cancel   context.CancelFunc
}

// NewEventRelay 중계기 생성
func NewEventRelay(client *redis.Client, channel string, logger *zap.Logger) *EventRelay {
	if channel == "" {
		channel = "arena:events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRelay{
		client:     client,
		logger:     logger,
		instanceID: uuid.New().String(),
		channel:    channel,
		stopChan:   make(chan struct{}),
	}
}

// InstanceID 이 인스턴스의 ID
func (r *EventRelay) InstanceID() string {
	return r.instanceID
}

// Start 구독 후 다른 인스턴스가 보낸 메시지를 handler 로 넘긴다. Stop 또는 ctx 취소까지 블록.
// ready 는 구독이 확인된 뒤 닫힌다 (nil 가능).
func (r *EventRelay) Start(ctx context.Context, ready chan<- struct{}, handler func(RelayMessage)) error {
	subCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	pubsub := r.client.Subscribe(subCtx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	r.logger.Info("Event relay started",
		zap.String("instance_id", r.instanceID),
		zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var relayed RelayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relayed); err != nil {
				r.logger.Error("Failed to unmarshal relay message", zap.Error(err))
				continue
			}
			if relayed.Origin == r.instanceID {
				continue
			}
			handler(relayed)

		case <-r.stopChan:
			r.logger.Info("Event relay stopped")
			return nil

		case <-subCtx.Done():
			return subCtx.Err()
		}
	}
}

// Stop 구독 중지
func (r *EventRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.stopChan:
		return
	default:
	}
	close(r.stopChan)
	if r.cancel != nil {
		r.cancel()
	}
}

// Publish 메시지 발행
func (r *EventRelay) Publish(ctx context.Context, userID, msgType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(RelayMessage{
		Origin:    r.instanceID,
		UserID:    userID,
		Type:      msgType,
		Payload:   body,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal relay message: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
