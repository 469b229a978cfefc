package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// gocronLogger forwards scheduler diagnostics into the structured logger.
type gocronLogger struct{}

// NewGocronLogger returns a gocron.Logger backed by the scheduler component logger.
//
//nolint:ireturn // gocron accepts the interface only
func NewGocronLogger() gocron.Logger {
	return gocronLogger{}
}

func (gocronLogger) Debug(msg string, args ...any) {
	logScheduler(slog.LevelDebug, msg, args...)
}

func (gocronLogger) Info(msg string, args ...any) {
	logScheduler(slog.LevelInfo, msg, args...)
}

func (gocronLogger) Warn(msg string, args ...any) {
	logScheduler(slog.LevelWarn, msg, args...)
}

func (gocronLogger) Error(msg string, args ...any) {
	logScheduler(slog.LevelError, msg, args...)
}

func logScheduler(level slog.Level, msg string, args ...any) {
	if level == slog.LevelDebug && !ShouldSampleDebug() {
		return
	}
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	attrs = append(attrs, slog.String("cause", msg))
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		val := args[i+1]
		if err, ok := val.(error); ok {
			attrs = append(attrs,
				slog.String("err", err.Error()),
				slog.String("err_code", schedulerErrCode(err)),
			)
			continue
		}
		attrs = append(attrs, slog.Any(key, val))
	}
	LogEvent(context.Background(), SCHED, level, "gocron", attrs...)
}

func schedulerErrCode(err error) string {
	switch {
	case errors.Is(err, gocron.ErrJobNotFound):
		return "JOB_NOT_FOUND"
	case errors.Is(err, gocron.ErrStopSchedulerTimedOut):
		return "SHUTDOWN_TIMEOUT"
	default:
		return "SCHEDULER"
	}
}
