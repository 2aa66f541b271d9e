package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutbox(t *testing.T, maxRetries int) *ReportOutbox {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewReportOutbox(distributed.NewRedisQueue(client, "reports", 0), maxRetries, nil)
}

func TestReportOutbox_PushAndDrain(t *testing.T) {
	outbox := newTestOutbox(t, 3)
	ctx := context.Background()

	winner := models.SideChaos
	report := models.MatchReport{
		MatchID:       "m1",
		OrderPlayerID: "alice",
		ChaosPlayerID: "bob",
		Result: models.MatchResult{
			Winner: &winner,
			Reason: models.FinishReasonForfeit,
			Rated:  true,
			Chaos:  models.SideResult{PlayerID: "bob", ScoreDelta: 12},
		},
	}
	require.NoError(t, outbox.Push(ctx, report))

	var settled []models.MatchReport
	n, err := outbox.Drain(ctx, 10, func(_ context.Context, r models.MatchReport) error {
		settled = append(settled, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, settled, 1)
	assert.Equal(t, "m1", settled[0].MatchID)
	assert.Equal(t, models.SideChaos, *settled[0].Result.Winner)
	assert.Equal(t, 12.0, settled[0].Result.Chaos.ScoreDelta)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &distributed.QueueStats{}, stats)
}

func TestReportOutbox_FailuresRetryThenDeadLetter(t *testing.T) {
	outbox := newTestOutbox(t, 2)
	ctx := context.Background()

	require.NoError(t, outbox.Push(ctx, models.MatchReport{MatchID: "m1"}))

	attempts := 0
	failing := func(context.Context, models.MatchReport) error {
		attempts++
		return errors.New("db down")
	}

	// 한 회차에 같은 보고서를 두 번 시도하지 않는다
	n, err := outbox.Drain(ctx, 10, failing)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, attempts)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.QueueSize)

	_, err = outbox.Drain(ctx, 10, failing)
	require.NoError(t, err)

	stats, err = outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.QueueSize)
	assert.Equal(t, int64(1), stats.DLQSize)
}

func TestReportOutbox_DrainFeedsMatchService(t *testing.T) {
	f := newMatchServiceFixture(MatchServiceConfig{})
	outbox := newTestOutbox(t, 3)
	f.svc.SetOutbox(outbox)
	f.skills.setFail(true)
	ctx := context.Background()

	session := f.start(t)
	require.NoError(t, session.Forfeit(models.SideOrder))

	require.Eventually(t, func() bool {
		stats, err := outbox.Stats(ctx)
		return err == nil && stats.QueueSize == 1
	}, time.Second, 5*time.Millisecond)

	f.skills.setFail(false)
	n, err := outbox.Drain(ctx, 10, f.svc.SettleReport)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 1, f.reports.count())
	bob, _ := f.skills.get("bob")
	assert.Equal(t, 31, bob.Matches)
}
