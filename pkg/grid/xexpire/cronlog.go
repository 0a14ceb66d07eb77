package xexpire

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger 把 cron 的日志转到 slog。cron 的 Info 很频繁，降为 Debug。
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("xexpire: cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("xexpire: cron "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
