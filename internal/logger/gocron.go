package logger

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// schedulerLogger sends gocron's internal logs to slog.
type schedulerLogger struct {
	log *slog.Logger
}

// SchedulerLogger returns a gocron.Logger writing to log. gocron reports at
// info what is debug detail here, so its Info becomes Debug.
func SchedulerLogger(log *slog.Logger) gocron.Logger {
	return schedulerLogger{log: log.With("component", "gocron")}
}

func (l schedulerLogger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l schedulerLogger) Info(msg string, args ...any)  { l.log.Debug(msg, args...) }
func (l schedulerLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
func (l schedulerLogger) Error(msg string, args ...any) { l.log.Error(msg, args...) }
