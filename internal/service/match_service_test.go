package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySkills struct {
	mu     sync.Mutex
	skills map[string]models.SkillRecord
	fail   bool
}

func (m *memorySkills) LoadSkill(_ context.Context, playerID string) (models.SkillRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skill, ok := m.skills[playerID]
	return skill, ok, nil
}

func (m *memorySkills) SaveSkill(_ context.Context, playerID string, skill models.SkillRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.skills[playerID] = skill
	return nil
}

func (m *memorySkills) ListLeaderboard(context.Context, int, int) ([]models.PlayerSkill, error) {
	return nil, nil
}

func (m *memorySkills) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *memorySkills) get(playerID string) (models.SkillRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skill, ok := m.skills[playerID]
	return skill, ok
}

type memoryReports struct {
	mu      sync.Mutex
	reports map[string]models.MatchReport
}

func (m *memoryReports) SaveReport(_ context.Context, report models.MatchReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reports[report.MatchID]; !exists {
		m.reports[report.MatchID] = report
	}
	return nil
}

func (m *memoryReports) FindReport(_ context.Context, matchID string) (*models.MatchReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[matchID]
	if !ok {
		return nil, nil
	}
	return &report, nil
}

func (m *memoryReports) ListByPlayer(context.Context, string, int, int) ([]models.MatchReport, error) {
	return nil, nil
}

func (m *memoryReports) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

type sentMessage struct {
	userID  string
	msgType string
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentMessage
	online map[string]bool
}

func (f *fakeNotifier) SendToUser(userID string, msgType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{userID: userID, msgType: msgType})
}

func (f *fakeNotifier) IsOnline(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeNotifier) types(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.userID == userID {
			out = append(out, m.msgType)
		}
	}
	return out
}

type recordingOutbox struct {
	mu     sync.Mutex
	pushed []string
}

func (o *recordingOutbox) Push(_ context.Context, report models.MatchReport) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pushed = append(o.pushed, report.MatchID)
	return nil
}

type matchServiceFixture struct {
	svc      *MatchService
	registry *MatchRegistry
	skills   *memorySkills
	reports  *memoryReports
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
}

func newMatchServiceFixture(cfg MatchServiceConfig) *matchServiceFixture {
	clock := clockwork.NewFakeClock()
	elo := newTestELOService()
	registry := NewMatchRegistry(elo, clock, nil)
	f := &matchServiceFixture{
		registry: registry,
		skills: &memorySkills{skills: map[string]models.SkillRecord{
			"alice": {Score: 1500, Matches: 30, KFactor: 24, Wins: 12, Draws: 3, Defeats: 15},
			"bob":   {Score: 1500, Matches: 30, KFactor: 24, Wins: 15, Draws: 3, Defeats: 12},
		}},
		reports:  &memoryReports{reports: make(map[string]models.MatchReport)},
		notifier: &fakeNotifier{online: map[string]bool{"alice": true, "bob": true}},
		clock:    clock,
	}
	if cfg.TimeBudget == 0 {
		cfg.TimeBudget = testBudget
	}
	f.svc = NewMatchService(registry, elo, f.skills, f.reports, f.notifier, cfg, clock, nil)
	return f
}

func (f *matchServiceFixture) start(t *testing.T) *MatchSession {
	t.Helper()
	session, err := f.svc.CreateMatch(context.Background(),
		models.QueueEntry{PlayerID: "alice"},
		models.QueueEntry{PlayerID: "bob"})
	require.NoError(t, err)
	return session
}

func (f *matchServiceFixture) waitSettled(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.registry.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMatchService_CreateMatchUsesStoredSkills(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})

	session, err := f.svc.CreateMatch(context.Background(),
		models.QueueEntry{PlayerID: "alice"},
		models.QueueEntry{PlayerID: "newbie"})
	require.NoError(t, err)

	require.NoError(t, session.Forfeit(models.SideOrder))
	report, err := session.BuildReport()
	require.NoError(t, err)

	assert.Equal(t, 1500.0, report.Result.Order.RatingBefore)
	// 기록이 없는 플레이어는 초기 레이팅으로 시작
	assert.Equal(t, 1500.0, report.Result.Chaos.RatingBefore)
	assert.Equal(t, 1, report.Result.Chaos.SkillAfter.Matches)
}

func TestMatchService_EventsReachBothPlayers(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	session := f.start(t)

	require.NoError(t, f.svc.SubmitMove(session.ID(), "alice", 5))
	require.NoError(t, f.svc.PostMessage(context.Background(), "", "bob", "gl"))

	for _, player := range []string{"alice", "bob"} {
		assert.Equal(t,
			[]string{models.EventSessionStarted, models.EventMoveAccepted, models.EventMessagePosted},
			f.notifier.types(player))
	}
}

func TestMatchService_PlayerCommandErrors(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	session := f.start(t)

	assert.ErrorIs(t, f.svc.SubmitMove(session.ID(), "bob", 5), ErrNotYourTurn)
	assert.ErrorIs(t, f.svc.SubmitMove(session.ID(), "mallory", 5), ErrPlayerNotInMatch)
	assert.ErrorIs(t, f.svc.SubmitMove("missing", "alice", 5), ErrMatchNotFound)
	assert.ErrorIs(t, f.svc.Forfeit("", "mallory"), ErrNoActiveMatch)
	assert.ErrorIs(t, f.svc.PostMessage(context.Background(), "", "alice", "   "), ErrEmptyMessage)
}

func TestMatchService_SettlesFinishedMatch(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	session := f.start(t)

	for i, n := range []int{8, 2, 1, 9, 6} {
		player := "alice"
		if i%2 == 1 {
			player = "bob"
		}
		require.NoError(t, f.svc.SubmitMove(session.ID(), player, n))
	}

	f.waitSettled(t)

	report, err := f.svc.GetReport(context.Background(), session.ID())
	require.NoError(t, err)
	require.NotNil(t, report.Result.Winner)
	assert.Equal(t, models.SideOrder, *report.Result.Winner)

	alice, _ := f.skills.get("alice")
	bob, _ := f.skills.get("bob")
	assert.Greater(t, alice.Score, 1500.0)
	assert.Less(t, bob.Score, 1500.0)
	assert.InDelta(t, 3000, alice.Score+bob.Score, 1e-9)
	assert.Equal(t, 31, alice.Matches)
	assert.Equal(t, models.MatchStats{Wins: 13, Draws: 3, Defeats: 15}, alice.Stats())
	assert.Equal(t, models.MatchStats{Wins: 15, Draws: 3, Defeats: 13}, bob.Stats())
	assert.Equal(t, 1.0, report.Result.Order.Score)
	assert.Equal(t, 0.0, report.Result.Chaos.Score)
}

func TestMatchService_FailedSettlementStaysPending(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	mm := NewMatchmakingService(nil, f.registry, f.svc, defaultTestQueueConfig, f.clock, nil)
	f.svc.SetMatchmakingService(mm)
	outbox := &recordingOutbox{}
	f.svc.SetOutbox(outbox)
	f.skills.setFail(true)

	session := f.start(t)
	require.NoError(t, f.svc.Forfeit(session.ID(), "bob"))

	require.Eventually(t, func() bool {
		outbox.mu.Lock()
		defer outbox.mu.Unlock()
		return len(outbox.pushed) == 1
	}, time.Second, 5*time.Millisecond)

	// 저장되기 전까지 세션과 보고서는 메모리에 남는다
	assert.Equal(t, 1, f.registry.Len())
	report, err := f.svc.GetReport(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Equal(t, models.FinishReasonForfeit, report.Result.Reason)

	_, err = f.svc.JoinQueue(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrAlreadyInMatch)

	f.skills.setFail(false)
	require.Eventually(t, func() bool {
		return f.svc.RetryPending(context.Background()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 1, f.reports.count())
	assert.Equal(t, 0, f.svc.RetryPending(context.Background()))
}

func TestMatchService_SettleReportIsIdempotent(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	session := f.start(t)
	require.NoError(t, session.Forfeit(models.SideChaos))
	f.waitSettled(t)

	report, err := f.svc.GetReport(context.Background(), session.ID())
	require.NoError(t, err)

	require.NoError(t, f.svc.SettleReport(context.Background(), *report))
	assert.Equal(t, 1, f.reports.count())
}

func TestMatchService_DisconnectGraceForfeits(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{DisconnectGrace: 10 * time.Second})
	session := f.start(t)

	f.svc.PlayerDisconnected("alice")
	assert.False(t, session.IsConnected(models.SideOrder))
	assert.Empty(t, session.runningClocks())

	f.clock.Advance(10 * time.Second)

	f.waitSettled(t)
	report, err := f.svc.GetReport(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Equal(t, models.FinishReasonForfeit, report.Result.Reason)
	require.NotNil(t, report.Result.Winner)
	assert.Equal(t, models.SideChaos, *report.Result.Winner)
}

func TestMatchService_ReconnectCancelsGrace(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{DisconnectGrace: 10 * time.Second})
	session := f.start(t)

	f.svc.PlayerDisconnected("alice")
	f.clock.Advance(5 * time.Second)
	f.svc.PlayerConnected("alice")

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, models.MatchStatusInProgress, session.Status())
	assert.Equal(t, []models.Side{models.SideOrder}, session.runningClocks())
	assert.Contains(t, f.notifier.types("alice"), models.EventSessionState)
}

func TestMatchService_DisconnectLeavesQueue(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	mm := NewMatchmakingService(nil, f.registry, f.svc, defaultTestQueueConfig, f.clock, nil)
	f.svc.SetMatchmakingService(mm)

	status, err := f.svc.JoinQueue(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, status.InQueue)

	f.svc.PlayerDisconnected("alice")
	assert.False(t, f.svc.QueueStatus("alice").InQueue)
	assert.ErrorIs(t, f.svc.LeaveQueue("alice"), ErrPlayerNotInQueue)
}

func TestMatchService_RequeueAfterMatch(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{RequeueAfterMatch: true})
	mm := NewMatchmakingService(nil, f.registry, f.svc, defaultTestQueueConfig, f.clock, nil)
	f.svc.SetMatchmakingService(mm)
	f.notifier.online["bob"] = false

	session := f.start(t)
	require.NoError(t, session.Forfeit(models.SideChaos))
	f.waitSettled(t)

	require.Eventually(t, func() bool {
		return mm.Status("alice").InQueue
	}, time.Second, 5*time.Millisecond)
	assert.False(t, mm.Status("bob").InQueue)
}

func TestMatchService_ShutdownAbortsAndSettles(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	session := f.start(t)
	require.NoError(t, f.svc.SubmitMove(session.ID(), "alice", 5))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	assert.Equal(t, 0, f.registry.Len())
	report, err := f.svc.GetReport(context.Background(), session.ID())
	require.NoError(t, err)
	assert.Equal(t, models.FinishReasonAborted, report.Result.Reason)
	assert.False(t, report.Result.Rated)

	// 중단된 매치는 레이팅을 바꾸지 않는다
	alice, _ := f.skills.get("alice")
	assert.Equal(t, 30, alice.Matches)
}

func TestMatchService_MatchmakingEndToEnd(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	mm := NewMatchmakingService(nil, f.registry, f.svc, defaultTestQueueConfig, f.clock, nil)
	f.svc.SetMatchmakingService(mm)
	ctx := context.Background()

	_, err := f.svc.JoinQueue(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.JoinQueue(ctx, "bob")
	require.NoError(t, err)

	require.Equal(t, 1, mm.RunPairingPass(ctx))

	session, ok := f.registry.FindByPlayer("alice")
	require.True(t, ok)
	side, err := session.SideOf("alice")
	require.NoError(t, err)
	assert.Equal(t, models.SideOrder, side)
	assert.Contains(t, f.notifier.types("bob"), models.EventSessionStarted)
}

type countingLimiter struct {
	allowed int
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	if l.allowed == 0 {
		return false, nil
	}
	l.allowed--
	return true, nil
}

func TestMatchService_ChatRateLimit(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{MessageLimit: 2, MessageWindow: time.Minute})
	f.svc.SetMessageLimiter(&countingLimiter{allowed: 2})
	session := f.start(t)
	ctx := context.Background()

	require.NoError(t, f.svc.PostMessage(ctx, session.ID(), "alice", "hi"))
	require.NoError(t, f.svc.PostMessage(ctx, session.ID(), "alice", "again"))
	assert.ErrorIs(t, f.svc.PostMessage(ctx, session.ID(), "alice", "spam"), ErrRateLimited)

	state := session.State()
	assert.Equal(t, models.MatchStatusInProgress, state.Status)
}
