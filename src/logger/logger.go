package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// LogrusLogger adapts gorm's logger interface onto the process-wide logrus
// logger, so database logs pick up the same hooks and formatting as the rest
// of the engine. Routine SQL logs at debug; slow queries and errors are
// promoted.
type LogrusLogger struct {
	logger *logrus.Logger
}

func NewLogrusLogger() *LogrusLogger {
	return &LogrusLogger{
		logger: logrus.StandardLogger(),
	}
}

func (l *LogrusLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	return &newLogger
}

func (l *LogrusLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Infof(msg, data...)
}

func (l *LogrusLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Warnf(msg, data...)
}

func (l *LogrusLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Errorf(msg, data...)
}

func (l *LogrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := logrus.Fields{
		"elapsed": elapsed,
		"rows":    rows,
		"sql":     sql,
	}

	switch {
	case err != nil:
		l.logger.WithContext(ctx).WithFields(fields).Error(err)
	case elapsed >= slowQueryThreshold:
		l.logger.WithContext(ctx).WithFields(fields).Warnf("SLOW SQL >= %s", slowQueryThreshold)
	default:
		l.logger.WithContext(ctx).WithFields(fields).Debug("SQL")
	}
}
