package callback

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandlePurgeTask removes expired ledger entries.
func (g *Gateway) HandlePurgeTask(ctx context.Context, _ *asynq.Task) error {
	deleted, err := g.PurgeExpired(ctx)
	if err != nil {
		zap.L().Error("[Callback] failed to purge expired events", zap.Error(err))
		return err
	}
	zap.L().Info("[Callback] purged expired events", zap.Int64("deleted", deleted))
	return nil
}
