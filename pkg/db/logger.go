package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// QueryLogger bridges gorm's logger.Interface onto the zap logger. The
// slow-query threshold comes from configuration so operators can tune it per
// deployment; anything at or above it logs at warn.
type QueryLogger struct {
	zap           *zap.Logger
	level         logger.LogLevel
	showSQL       bool
	slowThreshold time.Duration
}

func NewQueryLogger(z *zap.Logger, level logger.LogLevel, showSQL bool, slowThreshold time.Duration) *QueryLogger {
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowQueryThreshold
	}
	return &QueryLogger{
		zap:           z,
		level:         level,
		showSQL:       showSQL,
		slowThreshold: slowThreshold,
	}
}

func (l *QueryLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *QueryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.zap.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *QueryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.zap.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *QueryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.zap.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *QueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("source", utils.FileWithLineNum()),
		zap.String("query", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound):
		l.zap.Error("db query failed", append(fields, zap.Error(err))...)
	case elapsed >= l.slowThreshold:
		l.zap.Warn("db slow query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= logger.Info && l.showSQL:
		l.zap.Debug("db query", fields...)
	}
}
