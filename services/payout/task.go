package payout

import (
	"context"
	"encoding/json"
	"fmt"

	"kinads-controlplane/pkg/task"
	"kinads-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type cyclePayload struct {
	Date string `json:"date"`
}

// NewCycleTask builds the payout task for date. The task id makes a second
// enqueue for the same date a no-op while the first is pending.
func NewCycleTask(date string) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(cyclePayload{Date: date})
	if err != nil {
		return nil, nil, err
	}
	return asynq.NewTask(taskname.PayoutCycleRun, payload), []asynq.Option{
		asynq.TaskID(taskname.PayoutCycleRun + ":" + date),
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(3),
	}, nil
}

// HandleCycleTask runs the payout cycle named in the task payload.
func (e *Executor) HandleCycleTask(ctx context.Context, t *asynq.Task) error {
	var payload cyclePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid payout cycle payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	zap.L().Info("Processing payout cycle task", zap.String("date", payload.Date))

	summary, err := e.Run(ctx, payload.Date)
	if IsCycleInProgress(err) {
		zap.L().Warn("payout cycle already running elsewhere", zap.String("date", payload.Date))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	zap.L().Info("Finished payout cycle task",
		zap.String("date", payload.Date),
		zap.String("cycle_id", summary.CycleID),
		zap.Int("paid", summary.Paid()),
		zap.Int("failed", summary.Failed()))
	return nil
}
