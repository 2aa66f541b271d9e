package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommands struct {
	mu           sync.Mutex
	moves        []int
	connected    []string
	disconnected []string
}

func (f *fakeCommands) JoinQueue(_ context.Context, playerID string) (models.QueueStatus, error) {
	return models.QueueStatus{InQueue: true, Waiting: 1}, nil
}

func (f *fakeCommands) LeaveQueue(string) error {
	return errors.New("player is not in queue")
}

func (f *fakeCommands) SubmitMove(_, _ string, number int) error {
	if number < 1 || number > 9 {
		return errors.New("number out of range")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, number)
	return nil
}

func (f *fakeCommands) Forfeit(string, string) error { return nil }

func (f *fakeCommands) PostMessage(context.Context, string, string, string) error { return nil }

func (f *fakeCommands) PlayerConnected(playerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, playerID)
}

func (f *fakeCommands) PlayerDisconnected(playerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, playerID)
}

func (f *fakeCommands) snapshot() (moves []int, connected, disconnected []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.moves...),
		append([]string(nil), f.connected...),
		append([]string(nil), f.disconnected...)
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func startHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.IsOnline(user) }, time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_SendToUser(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := startHub(t, hub)

	alice := dial(t, srv, hub, "alice")
	dial(t, srv, hub, "bob")
	assert.Equal(t, 2, hub.ClientCount())

	hub.SendToUser("alice", models.EventMoveAccepted, models.MoveAcceptedPayload{Side: models.SideOrder, Number: 5})

	msg := read(t, alice)
	assert.Equal(t, models.EventMoveAccepted, msg.Type)
	var payload models.MoveAcceptedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, 5, payload.Number)

	assert.False(t, hub.IsOnline("carol"))
}

func TestHub_Commands(t *testing.T) {
	commands := &fakeCommands{}
	hub := NewHub(nil, nil)
	hub.SetCommands(commands)
	srv := startHub(t, hub)
	conn := dial(t, srv, hub, "alice")

	tests := []struct {
		name     string
		send     string
		wantType string
		wantErr  string
	}{
		{"대기열 참가", `{"type":"join"}`, models.EventQueueJoined, ""},
		{"대기열에 없는데 나가기", `{"type":"leave"}`, models.EventError, "player is not in queue"},
		{"범위 밖 숫자", `{"type":"move","number":12}`, models.EventError, "number out of range"},
		{"알 수 없는 명령", `{"type":"dance"}`, models.EventError, "unknown command"},
		{"깨진 JSON", `{"type":`, models.EventError, "malformed command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.send)))

			msg := read(t, conn)
			assert.Equal(t, tt.wantType, msg.Type)
			if tt.wantErr != "" {
				var payload ErrorPayload
				require.NoError(t, json.Unmarshal(msg.Payload, &payload))
				assert.Equal(t, tt.wantErr, payload.Error)
			}
		})
	}

	require.NoError(t, conn.WriteJSON(Command{Type: CommandMove, Number: 7}))
	require.Eventually(t, func() bool {
		moves, _, _ := commands.snapshot()
		return len(moves) == 1 && moves[0] == 7
	}, time.Second, 5*time.Millisecond)
}

func TestHub_ConnectionCallbacks(t *testing.T) {
	commands := &fakeCommands{}
	hub := NewHub(nil, nil)
	hub.SetCommands(commands)
	srv := startHub(t, hub)

	first := dial(t, srv, hub, "alice")

	t.Run("재접속은 끊김으로 보지 않는다", func(t *testing.T) {
		second := dial(t, srv, hub, "alice")

		// 이전 연결은 서버가 닫는다
		require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := first.ReadMessage()
		assert.Error(t, err)

		time.Sleep(50 * time.Millisecond)
		_, connected, disconnected := commands.snapshot()
		assert.Equal(t, []string{"alice", "alice"}, connected)
		assert.Empty(t, disconnected)
		assert.True(t, hub.IsOnline("alice"))

		hub.SendToUser("alice", models.EventSessionState, models.SessionState{MatchID: "m1"})
		assert.Equal(t, models.EventSessionState, read(t, second).Type)

		t.Run("마지막 연결이 닫히면 끊김 통지", func(t *testing.T) {
			second.Close()
			require.Eventually(t, func() bool {
				_, _, disconnected := commands.snapshot()
				return len(disconnected) == 1
			}, time.Second, 5*time.Millisecond)
			assert.False(t, hub.IsOnline("alice"))
		})
	})
}

func TestHub_RelayAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hubA := NewHub(nil, nil)
	hubA.SetRelay(distributed.NewEventRelay(client, "test:events", nil))
	srvA := startHub(t, hubA)

	hubB := NewHub(nil, nil)
	hubB.SetRelay(distributed.NewEventRelay(client, "test:events", nil))
	startHub(t, hubB)

	for _, h := range []*Hub{hubA, hubB} {
		select {
		case <-h.RelayReady():
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not subscribe")
		}
	}

	alice := dial(t, srvA, hubA, "alice")

	// alice 는 A 에 연결되어 있으므로 B 에서 보낸 메시지는 릴레이를 거친다
	hubB.SendToUser("alice", models.EventMessagePosted, models.MessagePostedPayload{Side: models.SideChaos, Text: "gg"})

	msg := read(t, alice)
	assert.Equal(t, models.EventMessagePosted, msg.Type)
	var payload models.MessagePostedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "gg", payload.Text)
}
