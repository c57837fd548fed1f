package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"tickethub/pkg/chain"
	"tickethub/pkg/config"
	"tickethub/pkg/db"
	"tickethub/pkg/gen"
	"tickethub/pkg/logger"
	"tickethub/pkg/redis"
	"tickethub/pkg/task"
	"tickethub/services/reconcile"
	"tickethub/services/revocation"
	"tickethub/services/ticket"
)

func main() {
	opts := []fx.Option{
		logger.Module,
		config.Module,
		db.Module,
		redis.Module,
		gen.Module,
		chain.Module,
		task.Client,
		task.Server,
		ticket.Module,
		revocation.WorkerHost,
		reconcile.WorkerHost,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
