package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	"go.uber.org/zap"
)

// Hub WebSocket 연결 관리 및 전달
type Hub struct {
	// 사용자별 연결 저장 (userID -> *Client)
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	commands   MatchCommands
	relay      *distributed.EventRelay
	relayReady chan struct{}
	upgrader   websocket.Upgrader

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	UserID  string      `json:"-"` // 수신자 (빈 문자열이면 전체 브로드캐스트)
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`

	relayed bool // 다른 인스턴스에서 넘어온 메시지는 다시 발행하지 않음
}

// NewHub Hub 생성. allowedOrigins 가 비어 있으면 모든 origin 허용
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		relayReady: make(chan struct{}),
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// 브라우저가 아닌 클라이언트는 Origin 을 보내지 않는다
		return origin == "" || set[origin]
	}
}

// SetCommands 클라이언트 명령을 처리할 대상 (Run 전에 설정)
func (h *Hub) SetCommands(commands MatchCommands) {
	h.commands = commands
}

// SetRelay 여러 인스턴스 간 메시지 전달 (Run 전에 설정)
func (h *Hub) SetRelay(relay *distributed.EventRelay) {
	h.relay = relay
}

// RelayReady 릴레이 구독이 확인되면 닫힌다
func (h *Hub) RelayReady() <-chan struct{} {
	return h.relayReady
}

// Run ctx 가 취소될 때까지 Hub 실행. 종료 시 모든 연결을 닫는다
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.relay != nil {
		go func() {
			err := h.relay.Start(ctx, h.relayReady, h.deliverRelayed)
			if err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Error("Event relay stopped", zap.Error(err))
			}
		}()
	}

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.dispatch(ctx, message)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if oldClient, exists := h.clients[client.userID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("userId", client.userID))
	}

	h.clients[client.userID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient 클라이언트 해제. 이미 교체된 연결이면 무시
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("userId", client.userID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// dispatch 로컬 연결로 전달, 없으면 릴레이로 발행
func (h *Hub) dispatch(ctx context.Context, message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if message.UserID == "" {
		for _, client := range h.clients {
			select {
			case client.send <- message:
			default:
				// 채널이 가득 찬 경우 연결 해제
				h.logger.Warn("Client send channel full, unregistering",
					zap.String("userId", client.userID))
				go h.drop(client)
			}
		}
		return
	}

	if client, exists := h.clients[message.UserID]; exists {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send channel full",
				zap.String("userId", message.UserID))
		}
		return
	}

	if h.relay != nil && !message.relayed {
		go h.publish(ctx, message)
	}
}

func (h *Hub) publish(ctx context.Context, message *Message) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.relay.Publish(ctx, message.UserID, message.Type, message.Payload); err != nil {
		h.logger.Warn("Failed to relay message",
			zap.String("userId", message.UserID),
			zap.String("type", message.Type),
			zap.Error(err))
	}
}

func (h *Hub) deliverRelayed(msg distributed.RelayMessage) {
	if !h.IsOnline(msg.UserID) {
		return
	}
	h.enqueue(&Message{
		UserID:  msg.UserID,
		Type:    msg.Type,
		Payload: msg.Payload,
		relayed: true,
	})
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToUser 특정 사용자에게 메시지 전송
func (h *Hub) SendToUser(userID string, msgType string, payload interface{}) {
	h.enqueue(&Message{
		UserID:  userID,
		Type:    msgType,
		Payload: payload,
	})
}

// Broadcast 이 인스턴스의 모든 사용자에게 메시지 전송
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.enqueue(&Message{
		Type:    msgType,
		Payload: payload,
	})
}

// IsOnline 이 인스턴스에 연결되어 있는지
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// ClientCount 연결 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
