package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl-arena/duel-arena-backend/internal/models"
	"github.com/rl-arena/duel-arena-backend/pkg/distributed"
	"go.uber.org/zap"
)

// ReportOutbox 저장에 실패한 매치 보고서를 Redis 큐에 보관했다가 다시 저장한다
type ReportOutbox struct {
	queue      *distributed.RedisQueue
	maxRetries int
	logger     *zap.Logger
}

func NewReportOutbox(queue *distributed.RedisQueue, maxRetries int, logger *zap.Logger) *ReportOutbox {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportOutbox{
		queue:      queue,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Push 보고서 보관. 매치 ID 가 작업 ID 가 된다.
func (o *ReportOutbox) Push(ctx context.Context, report models.MatchReport) error {
	item, err := distributed.NewQueueItem(report.MatchID, report, o.maxRetries)
	if err != nil {
		return err
	}
	if err := o.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("failed to push report: %w", err)
	}
	return nil
}

// Drain 보관된 보고서를 settle 로 처리. 실패한 보고서는 이번 회차가 끝난 뒤
// 재시도 횟수를 늘려 되돌리고, 한도를 넘으면 DLQ 로 보낸다. 한 번에 최대 limit 개.
func (o *ReportOutbox) Drain(ctx context.Context, limit int, settle func(context.Context, models.MatchReport) error) (int, error) {
	type failure struct {
		item *distributed.QueueItem
		err  error
	}
	var failed []failure
	defer func() {
		for _, f := range failed {
			if err := o.queue.Retry(ctx, f.item, f.err); err != nil {
				o.logger.Error("Failed to requeue report", zap.String("itemId", f.item.ID), zap.Error(err))
			}
		}
	}()

	done := 0
	for i := 0; i < limit; i++ {
		item, err := o.queue.Dequeue(ctx)
		if errors.Is(err, distributed.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return done, err
		}

		var report models.MatchReport
		if err := item.Decode(&report); err != nil {
			o.logger.Error("Dropping undecodable report", zap.String("itemId", item.ID), zap.Error(err))
			if err := o.queue.MoveToDLQ(ctx, item, "undecodable payload"); err != nil {
				return done, err
			}
			continue
		}

		if err := settle(ctx, report); err != nil {
			o.logger.Warn("Outbox settlement failed",
				zap.String("matchId", report.MatchID),
				zap.Int("retries", item.Retries),
				zap.Error(err))
			failed = append(failed, failure{item: item, err: err})
			continue
		}

		if err := o.queue.Complete(ctx, item.ID); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// Stats 큐 상태
func (o *ReportOutbox) Stats(ctx context.Context) (*distributed.QueueStats, error) {
	return o.queue.GetStats(ctx)
}

// RecoverStale 처리 도중 죽은 인스턴스가 남긴 보고서를 큐로 되돌린다
func (o *ReportOutbox) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	n, err := o.queue.RecoverStale(ctx, staleTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale reports: %w", err)
	}
	if n > 0 {
		o.logger.Warn("Recovered stale outbox reports", zap.Int("count", n))
	}
	return n, nil
}
