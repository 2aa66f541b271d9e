package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	commandTimeout = 5 * time.Second
)

// 클라이언트 명령 타입
const (
	CommandJoin    = "join"
	CommandLeave   = "leave"
	CommandMove    = "move"
	CommandForfeit = "forfeit"
	CommandMessage = "message"
)

// Command 클라이언트가 보내는 JSON 명령.
// matchId 가 비어 있으면 플레이어의 진행 중인 매치
type Command struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId,omitempty"`
	Number  int    `json:"number,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ErrorPayload 명령 실패 응답
type ErrorPayload struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

// MatchCommands 명령 처리와 연결 상태 통지 (service.MatchService)
type MatchCommands interface {
	JoinQueue(ctx context.Context, playerID string) (models.QueueStatus, error)
	LeaveQueue(playerID string) error
	SubmitMove(matchID, playerID string, number int) error
	Forfeit(matchID, playerID string) error
	PostMessage(ctx context.Context, matchID, playerID, text string) error
	PlayerConnected(playerID string)
	PlayerDisconnected(playerID string)
}

// Client WebSocket 클라이언트
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan *Message
	userID string
	logger *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *Message, 256),
		userID: userID,
		logger: hub.logger.With(zap.String("userId", userID)),
	}
}

// readPump 클라이언트 명령 읽기 (핑/퐁 유지)
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			return
		}
		// 새 연결로 교체된 경우는 끊김이 아니다
		if c.hub.commands != nil && !c.hub.IsOnline(c.userID) {
			c.hub.commands.PlayerDisconnected(c.userID)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(models.EventError, ErrorPayload{Error: "malformed command"})
			continue
		}
		c.handle(cmd)
	}
}

// handle 명령 하나 처리. 결과 이벤트는 세션이 두 플레이어에게 보낸다
func (c *Client) handle(cmd Command) {
	commands := c.hub.commands
	if commands == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch cmd.Type {
	case CommandJoin:
		var status models.QueueStatus
		status, err = commands.JoinQueue(ctx, c.userID)
		if err == nil {
			c.reply(models.EventQueueJoined, status)
		}
	case CommandLeave:
		err = commands.LeaveQueue(c.userID)
		if err == nil {
			c.reply(models.EventQueueLeft, models.QueueStatus{})
		}
	case CommandMove:
		err = commands.SubmitMove(cmd.MatchID, c.userID, cmd.Number)
	case CommandForfeit:
		err = commands.Forfeit(cmd.MatchID, c.userID)
	case CommandMessage:
		err = commands.PostMessage(ctx, cmd.MatchID, c.userID, cmd.Text)
	default:
		c.reply(models.EventError, ErrorPayload{Command: cmd.Type, Error: "unknown command"})
		return
	}

	if err != nil {
		c.logger.Debug("Command rejected", zap.String("command", cmd.Type), zap.Error(err))
		c.reply(models.EventError, ErrorPayload{Command: cmd.Type, Error: err.Error()})
	}
}

func (c *Client) reply(msgType string, payload interface{}) {
	c.hub.SendToUser(c.userID, msgType, payload)
}

// writePump Hub로부터 메시지를 받아 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(hub, conn, userID)
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	if hub.commands != nil {
		hub.commands.PlayerConnected(userID)
	}
}
