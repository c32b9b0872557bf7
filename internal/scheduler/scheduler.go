package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	obsmetrics "github.com/seatwise/seatwise/internal/observability/metrics"
	reminderdomain "github.com/seatwise/seatwise/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKey = "seatwise:scheduler:reminders"

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	ReminderSvc reminderdomain.Service
	Locker      *Locker `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.SchedulerConfig
	reminderSvc reminderdomain.Service
	locker      *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.ReminderSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.Scheduler
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 3600
	}
	if cfg.DueDays <= 0 {
		cfg.DueDays = 3
	}
	if cfg.SendBatchSize <= 0 {
		cfg.SendBatchSize = 50
	}
	if cfg.LockTTLSeconds <= 0 {
		cfg.LockTTLSeconds = 300
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:       p.Clock,
		cfg:         cfg,
		reminderSvc: p.ReminderSvc,
		locker:      p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ttl := time.Duration(s.cfg.LockTTLSeconds) * time.Second
	token, acquired, err := s.locker.TryLock(parent, lockKey, ttl)
	if err != nil {
		s.log.Warn("scheduler lock unavailable, skipping run", zap.Error(err))
		return nil
	}
	if !acquired {
		s.log.Debug("another instance holds the scheduler lock")
		return nil
	}
	defer func() {
		if err := s.locker.Release(parent, lockKey, token); err != nil {
			s.log.Warn("failed to release scheduler lock", zap.Error(err))
		}
	}()

	var runErr error
	runErr = errors.Join(runErr, s.runJob(parent, "collect_reminders", 30*time.Second, s.CollectRemindersJob))
	runErr = errors.Join(runErr, s.runJob(parent, "send_reminders", 5*time.Minute, s.SendRemindersJob))
	return runErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) CollectRemindersJob(ctx context.Context) error {
	result, err := s.reminderSvc.CollectDueReminders(ctx, s.cfg.DueDays)
	if err != nil {
		return err
	}
	s.log.Info("collect_reminders finished",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return nil
}

func (s *Scheduler) SendRemindersJob(ctx context.Context) error {
	summary, err := s.reminderSvc.AutoSendPending(ctx, s.cfg.SendBatchSize)
	if err != nil {
		return err
	}
	if summary.Total > 0 {
		s.log.Info("send_reminders finished",
			zap.Int("total", summary.Total),
			zap.Int("sent", summary.Sent),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
	}
	return nil
}
