package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tickethub/pkg/config"
	"tickethub/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues a queue-drain task on a fixed cadence. The task handler
// does the actual work, so a slow ledger never delays the next tick.
type Scheduler struct {
	enqueuer  task.Enqueuer
	interval  time.Duration
	batchSize int
}

func NewScheduler(cfg *config.Config, enqueuer task.Enqueuer) *Scheduler {
	interval := cfg.Worker.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		enqueuer:  enqueuer,
		interval:  interval,
		batchSize: cfg.Worker.QueueBatchSize,
	}
}

// StartScheduler is invoked by FX on service start.
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
	zap.L().Info("[Scheduler] started revocation queue scheduler",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) tick() {
	payload, err := json.Marshal(task.ProcessQueuePayload{BatchSize: s.batchSize})
	if err != nil {
		zap.L().Error("[Scheduler] failed to marshal payload", zap.Error(err))
		return
	}

	// Unique per interval so a backlog of ticks collapses into one task.
	_, err = s.enqueuer.Enqueue(
		asynq.NewTask(task.ProcessRevocationQueueTask, payload),
		asynq.Queue("critical"),
		asynq.Unique(s.interval),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return
		}
		zap.L().Error("[Scheduler] failed to enqueue queue drain", zap.Error(err))
		return
	}

	zap.L().Debug("[Scheduler] enqueued revocation queue drain")
}
