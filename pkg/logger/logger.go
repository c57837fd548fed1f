package logger

import (
	"context"

	"tickethub/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(New),
)

// New builds the process logger and installs it as the zap global. Outside
// production it is a human-readable development logger; in production it is
// JSON on stdout with ISO8601 timestamps, flushed on shutdown.
func New(lc fx.Lifecycle, cfg *config.Config) *zap.Logger {
	log := zap.Must(zap.NewDevelopment())

	if cfg.AppEnv == "production" {
		log = zap.Must(productionConfig().Build())
	}

	log = log.With(
		zap.String("env", cfg.AppEnv),
		zap.String("service", cfg.AppName),
		zap.String("version", cfg.AppVersion),
	)

	zap.ReplaceGlobals(log)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})

	return log
}

func productionConfig() zap.Config {
	c := zap.NewProductionConfig()
	c.Encoding = "json"
	c.OutputPaths = []string{"stdout"}
	c.ErrorOutputPaths = []string{"stderr"}
	c.EncoderConfig.TimeKey = "timestamp"
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	c.EncoderConfig.LevelKey = "severity"
	c.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	c.EncoderConfig.CallerKey = "caller"
	c.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	c.EncoderConfig.StacktraceKey = "stacktrace"
	return c
}
