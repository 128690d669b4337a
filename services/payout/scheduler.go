package payout

import (
	"context"
	"errors"
	"time"

	"kinads-controlplane/pkg/task"
	"kinads-controlplane/pkg/taskname"
	"kinads-controlplane/services/revenue"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the daily payout cycle and ledger purge.
type Scheduler struct {
	enqueuer task.Enqueuer
	hour     int
	dayDelay int
	now      func() time.Time
}

func NewScheduler(enqueuer task.Enqueuer, hour, dayDelay int) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, hour: hour, dayDelay: dayDelay, now: time.Now}
}

// StartScheduler runs the daily loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started payout scheduler", zap.Int("hour", s.hour))

	for {
		now := s.now()
		next := nextRunTime(now, s.hour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			s.runDaily(ctx)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := s.now()
	if err := s.EnqueueDaily(ctx, start); err != nil {
		zap.L().Error("[Scheduler] failed daily enqueue", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] finished daily enqueue", zap.Duration("duration", time.Since(start)))
}

// EnqueueDaily enqueues the payout cycle for the delayed date and the purge
// of expired callback events. Tasks already queued are not duplicated.
func (s *Scheduler) EnqueueDaily(ctx context.Context, now time.Time) error {
	date := PayoutDate(now, s.dayDelay)

	cycle, opts, err := NewCycleTask(date)
	if err != nil {
		return err
	}
	if err := s.enqueue(ctx, cycle, opts...); err != nil {
		return err
	}

	purge := asynq.NewTask(taskname.CallbackEventsPurge, nil)
	return s.enqueue(ctx, purge,
		asynq.TaskID(taskname.CallbackEventsPurge+":"+now.Format(revenue.DateLayout)),
		asynq.Queue(task.QueueLow),
	)
}

func (s *Scheduler) enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) error {
	info, err := s.enqueuer.Enqueue(ctx, t, opts...)
	if errors.Is(err, task.ErrDuplicateTask) {
		zap.L().Info("[Scheduler] task already enqueued", zap.String("task_type", t.Type()))
		return nil
	}
	if err != nil {
		return err
	}
	zap.L().Info("[Scheduler] enqueued task",
		zap.String("task_type", t.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue))
	return nil
}

// PayoutDate is the YYYYMMDD date paid out on day now: reports settle
// dayDelay days after the fact.
func PayoutDate(now time.Time, dayDelay int) string {
	return now.AddDate(0, 0, -dayDelay).Format(revenue.DateLayout)
}

// nextRunTime returns the next occurrence of hour:minute after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
