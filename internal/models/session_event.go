package models

// 세션 이벤트 타입 (전송 계층 메시지 type 과 동일)
const (
	EventSessionStarted     = "session_started"
	EventMoveAccepted       = "move_accepted"
	EventSessionFinished    = "session_finished"
	EventMessagePosted      = "message_posted"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
	EventSessionState       = "session_state"
	EventQueueJoined        = "queue_joined"
	EventQueueLeft          = "queue_left"
	EventError              = "error"
)

// SessionEvent MatchSession 이 발행하는 이벤트
type SessionEvent struct {
	Type    string      `json:"type"`
	MatchID string      `json:"matchId"`
	Payload interface{} `json:"payload"`
}

type SessionStartedPayload struct {
	MatchID string          `json:"matchId"`
	Players map[Side]string `json:"players"`
	Clocks  map[Side]int64  `json:"clocks"` // 남은 시간 ms
	Turn    Side            `json:"turn"`
}

type MoveAcceptedPayload struct {
	Side     Side           `json:"side"`
	Number   int            `json:"number"`
	NextTurn Side           `json:"nextTurn,omitempty"`
	Clocks   map[Side]int64 `json:"clocks"`
}

type SessionFinishedPayload struct {
	Result MatchResult `json:"result"`
	Report MatchReport `json:"report"`
}

type MessagePostedPayload struct {
	Side Side   `json:"side"`
	Text string `json:"text"`
}

type ConnectionPayload struct {
	Side Side `json:"side"`
}

// SessionState 진행 중인 매치 스냅샷
type SessionState struct {
	MatchID   string          `json:"matchId"`
	Status    MatchStatus     `json:"status"`
	Turn      Side            `json:"turn,omitempty"`
	Players   map[Side]string `json:"players"`
	Choices   map[Side][]int  `json:"choices"`
	Clocks    map[Side]int64  `json:"clocks"`
	Connected map[Side]bool   `json:"connected"`
	Result    *MatchResult    `json:"result,omitempty"`
}
