package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/flanksource/commons/logger"
	gLogger "gorm.io/gorm/logger"
)

const (
	Debug = "debug"
	Trace = "trace"
)

type gormLogger struct {
	logger                    logger.Logger
	level                     gLogger.LogLevel
	slowThreshold             time.Duration
	ignoreRecordNotFoundError bool
	parameterized             bool
}

// NewGormLogger returns a gorm logger backed by the "db" commons logger.
// trace logs every statement with its parameters, debug logs statements
// without parameters, anything else only logs errors and slow queries.
func NewGormLogger(level string) gLogger.Interface {
	l := &gormLogger{
		logger:                    logger.GetLogger("db"),
		level:                     gLogger.Warn,
		slowThreshold:             time.Second,
		ignoreRecordNotFoundError: true,
	}

	switch level {
	case Trace:
		l.level = gLogger.Info
	case Debug:
		l.level = gLogger.Info
		l.parameterized = true
	case "silent":
		l.level = gLogger.Silent
	}
	return l
}

func (l *gormLogger) LogMode(level gLogger.LogLevel) gLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gLogger.Info {
		l.logger.Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gLogger.Warn {
		l.logger.Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gLogger.Error {
		l.logger.Errorf(msg, data...)
	}
}

func (l *gormLogger) ParamsFilter(ctx context.Context, sql string, params ...any) (string, []any) {
	if l.parameterized {
		return sql, nil
	}
	return sql, params
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gLogger.Error && (!errors.Is(err, gLogger.ErrRecordNotFound) || !l.ignoreRecordNotFoundError):
		sql, rows := fc()
		l.logger.WithValues("rows", rows, "elapsed", elapsed).Errorf("%s: %v", sql, err)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gLogger.Warn:
		sql, rows := fc()
		l.logger.WithValues("rows", rows, "elapsed", elapsed).Warnf("slow query: %s", sql)
	case l.level == gLogger.Info:
		sql, rows := fc()
		l.logger.WithValues("rows", rows, "elapsed", elapsed).Infof(sql)
	}
}
