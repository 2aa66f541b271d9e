package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rl-arena/duel-arena-backend/internal/models"
)

const numbersPerMatch = 9

// Seat 매치 참가자와 시작 시점의 레이팅 스냅샷
type Seat struct {
	PlayerID string
	Skill    models.SkillRecord
}

// SessionListener 세션 이벤트 수신자.
// 세션 잠금 밖에서 발생 순서대로, 한 번에 한 고루틴에서만 호출된다. 세션 메서드를 불러도 된다.
type SessionListener func(session *MatchSession, event models.SessionEvent)

type SessionOption func(*MatchSession)

// WithClock 타이머/시각 소스 지정 (테스트용 fake clock)
func WithClock(clock clockwork.Clock) SessionOption {
	return func(s *MatchSession) {
		s.clock = clock
	}
}

// WithListener 이벤트 수신자 등록
func WithListener(listener SessionListener) SessionOption {
	return func(s *MatchSession) {
		s.listener = listener
	}
}

// turnClock 진영별 남은 시간. timer 가 nil 이면 멈춘 상태.
type turnClock struct {
	remaining time.Duration
	since     time.Time
	timer     clockwork.Timer
	gen       uint64
}

// MatchSession 한 매치의 상태 머신 (Waiting -> InProgress -> Finished)
type MatchSession struct {
	mu sync.Mutex

	id       string
	rating   *ELOService
	clock    clockwork.Clock
	listener SessionListener

	status    models.MatchStatus
	turn      models.Side
	seats     map[models.Side]Seat
	choices   map[models.Side][]int
	claimed   [numbersPerMatch + 1]bool
	clocks    map[models.Side]*turnClock
	connected map[models.Side]bool
	events    []models.MatchEvent

	startedAt  time.Time
	finishedAt time.Time
	result     *models.MatchResult
	report     *models.MatchReport

	pending  []models.SessionEvent // 전달 대기 중인 이벤트 (mu 보호)
	emitting bool                  // 누군가 pending 을 비우는 중
}

// NewMatchSession 대기 상태의 세션 생성
func NewMatchSession(id string, rating *ELOService, opts ...SessionOption) *MatchSession {
	s := &MatchSession{
		id:        id,
		rating:    rating,
		clock:     clockwork.NewRealClock(),
		status:    models.MatchStatusWaiting,
		seats:     make(map[models.Side]Seat, 2),
		choices:   map[models.Side][]int{models.SideOrder: {}, models.SideChaos: {}},
		clocks:    make(map[models.Side]*turnClock, 2),
		connected: make(map[models.Side]bool, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID 매치 ID
func (s *MatchSession) ID() string {
	return s.id
}

// Status 현재 상태
func (s *MatchSession) Status() models.MatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start 진영 배정 후 Order 의 타이머를 시작
func (s *MatchSession) Start(order, chaos Seat, budget time.Duration) error {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if s.status != models.MatchStatusWaiting {
		return ErrAlreadyStarted
	}
	if order.PlayerID == chaos.PlayerID {
		return ErrSamePlayer
	}
	if budget <= 0 {
		return fmt.Errorf("%w: time budget must be positive", ErrValidation)
	}

	s.seats[models.SideOrder] = order
	s.seats[models.SideChaos] = chaos
	for _, side := range []models.Side{models.SideOrder, models.SideChaos} {
		s.clocks[side] = &turnClock{remaining: budget}
		s.connected[side] = true
	}

	s.status = models.MatchStatusInProgress
	s.startedAt = s.clock.Now()
	s.turn = models.SideOrder
	s.armLocked(models.SideOrder)

	s.queue(models.EventSessionStarted, models.SessionStartedPayload{
		MatchID: s.id,
		Players: s.playersLocked(),
		Clocks:  s.clocksLocked(),
		Turn:    s.turn,
	})
	return nil
}

// SubmitMove 숫자 선택
func (s *MatchSession) SubmitMove(side models.Side, number int) error {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if !side.Valid() {
		return ErrInvalidSide
	}
	if s.status != models.MatchStatusInProgress {
		return ErrSessionNotActive
	}
	if side != s.turn {
		return ErrNotYourTurn
	}
	if number < 1 || number > numbersPerMatch || s.claimed[number] {
		return ErrInvalidChoice
	}

	s.haltLocked(side)
	s.appendEvent(models.MatchEvent{Side: side, Type: models.MatchEventChoice, Choice: number})

	held := s.choices[side]
	s.choices[side] = append(held, number)
	s.claimed[number] = true

	if triple, won := CompletesTriple(held, number); won {
		s.queueMove(side, number, "")
		winner := side
		s.finishLocked(&winner, models.FinishReasonTriple, triple[:], "")
		return nil
	}

	if len(s.choices[models.SideOrder])+len(s.choices[models.SideChaos]) == numbersPerMatch {
		s.queueMove(side, number, "")
		s.finishLocked(nil, models.FinishReasonDraw, nil, "")
		return nil
	}

	s.turn = side.Opponent()
	if s.connected[s.turn] {
		s.armLocked(s.turn)
	}
	s.queueMove(side, number, s.turn)
	return nil
}

// Forfeit 기권. 이미 끝난 매치에 대한 기권은 무시한다.
func (s *MatchSession) Forfeit(side models.Side) error {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if !side.Valid() {
		return ErrInvalidSide
	}
	switch s.status {
	case models.MatchStatusWaiting:
		return ErrSessionNotActive
	case models.MatchStatusFinished:
		return nil
	}

	s.appendEvent(models.MatchEvent{Side: side, Type: models.MatchEventForfeit})
	winner := side.Opponent()
	s.finishLocked(&winner, models.FinishReasonForfeit, nil, "")
	return nil
}

// OnTimerExpired 시간 초과 처리. 차례가 아니거나 진행 중이 아니면 아무것도 하지 않는다.
func (s *MatchSession) OnTimerExpired(side models.Side) {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if s.status != models.MatchStatusInProgress || s.turn != side {
		return
	}
	s.timeoutLocked(side)
}

// expire 타이머 콜백. 취소된 타이머(세대 불일치)는 버린다.
func (s *MatchSession) expire(side models.Side, gen uint64) {
	s.mu.Lock()
	defer s.unlockAndEmit()

	c := s.clocks[side]
	if c == nil || c.gen != gen || c.timer == nil {
		return
	}
	if s.status != models.MatchStatusInProgress || s.turn != side {
		return
	}
	s.timeoutLocked(side)
}

func (s *MatchSession) timeoutLocked(side models.Side) {
	s.haltLocked(side)
	s.clocks[side].remaining = 0

	s.appendEvent(models.MatchEvent{Side: side, Type: models.MatchEventTimeout})
	winner := side.Opponent()
	s.finishLocked(&winner, models.FinishReasonTimeout, nil, "")
}

// Disconnect 연결 끊김: 해당 진영 타이머를 멈춘다
func (s *MatchSession) Disconnect(side models.Side) error {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if !side.Valid() {
		return ErrInvalidSide
	}
	if s.status == models.MatchStatusFinished {
		return ErrSessionNotActive
	}
	if !s.connected[side] && s.status == models.MatchStatusInProgress {
		return nil
	}

	s.connected[side] = false
	if s.status == models.MatchStatusInProgress && s.turn == side {
		s.haltLocked(side)
	}
	s.queue(models.EventPlayerDisconnected, models.ConnectionPayload{Side: side})
	return nil
}

// Reconnect 재연결: 차례라면 남은 시간으로 타이머를 재개
func (s *MatchSession) Reconnect(side models.Side) error {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if !side.Valid() {
		return ErrInvalidSide
	}
	if s.status == models.MatchStatusFinished {
		return ErrSessionNotActive
	}
	if s.connected[side] {
		return nil
	}

	s.connected[side] = true
	if s.status == models.MatchStatusInProgress && s.turn == side {
		s.armLocked(side)
	}
	s.queue(models.EventPlayerReconnected, models.ConnectionPayload{Side: side})
	return nil
}

// IsConnected 진영 연결 여부
func (s *MatchSession) IsConnected(side models.Side) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[side]
}

// PostMessage 채팅 메시지 기록 (게임 상태에는 영향 없음)
func (s *MatchSession) PostMessage(side models.Side, text string) error {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if !side.Valid() {
		return ErrInvalidSide
	}
	if s.status == models.MatchStatusFinished {
		return ErrSessionNotActive
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.appendEvent(models.MatchEvent{Side: side, Type: models.MatchEventMessage, Message: text})
	s.queue(models.EventMessagePosted, models.MessagePostedPayload{Side: side, Text: text})
	return nil
}

// Abort 외부 요인(서버 종료 등)으로 매치를 강제 종료. 레이팅에 반영되지 않는다.
// 이미 끝난 매치면 false.
func (s *MatchSession) Abort(reason string) bool {
	s.mu.Lock()
	defer s.unlockAndEmit()

	if s.status == models.MatchStatusFinished {
		return false
	}
	s.finishLocked(nil, models.FinishReasonAborted, nil, reason)
	return true
}

// BuildReport 종료된 매치의 보고서. 몇 번을 호출해도 같은 내용을 돌려준다.
func (s *MatchSession) BuildReport() (models.MatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.MatchStatusFinished {
		return models.MatchReport{}, ErrSessionNotFinished
	}
	return copyReport(*s.report), nil
}

// SideOf 플레이어의 진영
func (s *MatchSession) SideOf(playerID string) (models.Side, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for side, seat := range s.seats {
		if seat.PlayerID == playerID {
			return side, nil
		}
	}
	return "", ErrPlayerNotInMatch
}

// Players 진영별 플레이어 ID
func (s *MatchSession) Players() map[models.Side]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

// State 전송 계층에 보낼 현재 스냅샷
func (s *MatchSession) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.SessionState{
		MatchID:   s.id,
		Status:    s.status,
		Turn:      s.turn,
		Players:   s.playersLocked(),
		Choices:   make(map[models.Side][]int, 2),
		Clocks:    s.clocksLocked(),
		Connected: make(map[models.Side]bool, 2),
	}
	for side, nums := range s.choices {
		state.Choices[side] = append([]int{}, nums...)
	}
	for side, ok := range s.connected {
		state.Connected[side] = ok
	}
	if s.result != nil {
		result := copyResult(*s.result)
		state.Result = &result
	}
	return state
}

// runningClocks 현재 돌고 있는 타이머의 진영 목록
func (s *MatchSession) runningClocks() []models.Side {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sides []models.Side
	for _, side := range []models.Side{models.SideOrder, models.SideChaos} {
		if c := s.clocks[side]; c != nil && c.timer != nil {
			sides = append(sides, side)
		}
	}
	return sides
}

func (s *MatchSession) armLocked(side models.Side) {
	c := s.clocks[side]
	if c == nil || c.timer != nil {
		return
	}
	c.gen++
	gen := c.gen
	c.since = s.clock.Now()
	c.timer = s.clock.AfterFunc(c.remaining, func() {
		s.expire(side, gen)
	})
}

func (s *MatchSession) haltLocked(side models.Side) {
	c := s.clocks[side]
	if c == nil || c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
	c.gen++
	c.remaining -= s.clock.Since(c.since)
	if c.remaining < 0 {
		c.remaining = 0
	}
}

func (s *MatchSession) finishLocked(winner *models.Side, reason models.FinishReason, triple []int, detail string) {
	s.haltLocked(models.SideOrder)
	s.haltLocked(models.SideChaos)

	s.status = models.MatchStatusFinished
	s.turn = ""
	s.finishedAt = s.clock.Now()

	result := s.computeResultLocked(winner, reason)
	result.Detail = detail
	if len(triple) > 0 {
		result.Triple = append([]int{}, triple...)
	}
	s.result = &result

	s.report = &models.MatchReport{
		MatchID:       s.id,
		OrderPlayerID: s.seats[models.SideOrder].PlayerID,
		ChaosPlayerID: s.seats[models.SideChaos].PlayerID,
		Result:        copyResult(result),
		Events:        append([]models.MatchEvent{}, s.events...),
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
	}

	report := copyReport(*s.report)
	s.queue(models.EventSessionFinished, models.SessionFinishedPayload{
		Result: report.Result,
		Report: report,
	})
}

func (s *MatchSession) computeResultLocked(winner *models.Side, reason models.FinishReason) models.MatchResult {
	result := models.MatchResult{
		Winner: winner,
		Reason: reason,
		Rated:  reason != models.FinishReasonAborted && s.rating != nil && len(s.seats) == 2,
	}

	for _, side := range []models.Side{models.SideOrder, models.SideChaos} {
		seat := s.seats[side]
		sr := models.SideResult{
			PlayerID:     seat.PlayerID,
			RatingBefore: seat.Skill.Score,
			RatingAfter:  seat.Skill.Score,
			SkillAfter:   seat.Skill,
		}

		if result.Rated {
			outcome := OutcomeDraw
			if winner != nil && *winner == side {
				outcome = OutcomeWin
			} else if winner != nil {
				outcome = OutcomeLoss
			}

			delta, next := s.rating.ComputeOutcome(seat.Skill, s.seats[side.Opponent()].Skill, outcome)
			sr.Score = outcome.ActualScore()
			sr.ScoreDelta = delta
			sr.RatingAfter = next.Score
			sr.SkillAfter = next
		}

		if s.rating != nil {
			display := s.rating.ToDisplayRating(sr.SkillAfter)
			sr.League = display.League
			sr.Division = display.Division
		}

		if side == models.SideOrder {
			result.Order = sr
		} else {
			result.Chaos = sr
		}
	}
	return result
}

func (s *MatchSession) appendEvent(ev models.MatchEvent) {
	now := s.clock.Now()
	ev.Timestamp = now
	if !s.startedAt.IsZero() {
		ev.Time = now.Sub(s.startedAt).Milliseconds()
	}
	s.events = append(s.events, ev)
}

func (s *MatchSession) queueMove(side models.Side, number int, next models.Side) {
	s.queue(models.EventMoveAccepted, models.MoveAcceptedPayload{
		Side:     side,
		Number:   number,
		NextTurn: next,
		Clocks:   s.clocksLocked(),
	})
}

func (s *MatchSession) queue(eventType string, payload interface{}) {
	s.pending = append(s.pending, models.SessionEvent{
		Type:    eventType,
		MatchID: s.id,
		Payload: payload,
	})
}

// unlockAndEmit 잠금을 풀고 쌓인 이벤트를 순서대로 전달.
// 이미 다른 고루틴이 전달 중이면 그 고루틴이 이어서 보낸다. 리스너 호출 중에는 어떤 잠금도 잡지 않는다.
func (s *MatchSession) unlockAndEmit() {
	if s.listener == nil {
		s.pending = nil
		s.mu.Unlock()
		return
	}
	if s.emitting || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitting = true

	for {
		batch := s.pending
		s.pending = nil
		if len(batch) == 0 {
			s.emitting = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		for _, ev := range batch {
			s.listener(s, ev)
		}
		s.mu.Lock()
	}
}

func (s *MatchSession) playersLocked() map[models.Side]string {
	players := make(map[models.Side]string, len(s.seats))
	for side, seat := range s.seats {
		players[side] = seat.PlayerID
	}
	return players
}

func (s *MatchSession) clocksLocked() map[models.Side]int64 {
	clocks := make(map[models.Side]int64, len(s.clocks))
	now := s.clock.Now()
	for side, c := range s.clocks {
		remaining := c.remaining
		if c.timer != nil {
			remaining -= now.Sub(c.since)
		}
		if remaining < 0 {
			remaining = 0
		}
		clocks[side] = remaining.Milliseconds()
	}
	return clocks
}

func copyResult(r models.MatchResult) models.MatchResult {
	out := r
	if r.Winner != nil {
		w := *r.Winner
		out.Winner = &w
	}
	if r.Triple != nil {
		out.Triple = append([]int{}, r.Triple...)
	}
	return out
}

func copyReport(r models.MatchReport) models.MatchReport {
	out := r
	out.Result = copyResult(r.Result)
	out.Events = append([]models.MatchEvent{}, r.Events...)
	return out
}
