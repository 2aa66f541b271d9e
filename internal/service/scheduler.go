package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// SchedulerConfig 주기 작업 간격. 0 이면 해당 작업을 등록하지 않는다
type SchedulerConfig struct {
	SettleRetryInterval time.Duration
	OutboxInterval      time.Duration
	OutboxBatch         int
	OutboxStaleTimeout  time.Duration
	ChallengerInterval  time.Duration
	JobTimeout          time.Duration
}

// Scheduler 정산 재시도, outbox 처리, 챌린저 재계산을 주기적으로 실행
type Scheduler struct {
	sched       gocron.Scheduler
	matches     *MatchService
	outbox      *ReportOutbox
	challengers *ChallengerService
	cfg         SchedulerConfig
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler outbox, challengers 는 nil 가능
func NewScheduler(
	matches *MatchService,
	outbox *ReportOutbox,
	challengers *ChallengerService,
	cfg SchedulerConfig,
	logger *zap.Logger,
) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutboxBatch <= 0 {
		cfg.OutboxBatch = 50
	}
	if cfg.OutboxStaleTimeout <= 0 {
		cfg.OutboxStaleTimeout = 5 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}

	sched, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{logger.Sugar()}))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sched:       sched,
		matches:     matches,
		outbox:      outbox,
		challengers: challengers,
		cfg:         cfg,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	if err := s.register(); err != nil {
		cancel()
		_ = sched.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	if s.cfg.SettleRetryInterval > 0 {
		if err := s.add("settle-retry", s.cfg.SettleRetryInterval, s.retryPending); err != nil {
			return err
		}
	}
	if s.outbox != nil && s.cfg.OutboxInterval > 0 {
		if err := s.add("outbox-drain", s.cfg.OutboxInterval, s.drainOutbox); err != nil {
			return err
		}
	}
	if s.challengers != nil && s.cfg.ChallengerInterval > 0 {
		if err := s.add("challenger-recompute", s.cfg.ChallengerInterval, s.recomputeChallengers); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) add(name string, every time.Duration, fn func(ctx context.Context)) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
			defer cancel()
			fn(ctx)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s job: %w", name, err)
	}
	s.logger.Info("Scheduled job registered", zap.String("job", name), zap.Duration("every", every))
	return nil
}

// Start 작업 실행 시작
func (s *Scheduler) Start() {
	s.sched.Start()
}

// JobNames 등록된 작업 이름
func (s *Scheduler) JobNames() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Shutdown 실행 중인 작업을 취소하고 종료를 기다린다
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) retryPending(ctx context.Context) {
	s.matches.RetryPending(ctx)
}

func (s *Scheduler) drainOutbox(ctx context.Context) {
	if _, err := s.outbox.RecoverStale(ctx, s.cfg.OutboxStaleTimeout); err != nil {
		s.logger.Error("Outbox stale recovery failed", zap.Error(err))
	}

	n, err := s.outbox.Drain(ctx, s.cfg.OutboxBatch, s.matches.SettleReport)
	if err != nil {
		s.logger.Error("Outbox drain failed", zap.Error(err))
	}
	if n > 0 {
		s.logger.Info("Outbox reports settled", zap.Int("count", n))
	}
}

func (s *Scheduler) recomputeChallengers(ctx context.Context) {
	if _, err := s.challengers.RecomputeChallengers(ctx); err != nil {
		s.logger.Error("Challenger recomputation failed", zap.Error(err))
	}
}

// gocronLogger gocron.Logger 를 zap 으로 연결
type gocronLogger struct {
	l *zap.SugaredLogger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debugw(msg, args...) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Errorw(msg, args...) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Infow(msg, args...) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warnw(msg, args...) }
