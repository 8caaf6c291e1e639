package jobs

import (
	"fmt"
	"log/slog"
	"os"
)

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(l *slog.Logger) asynqLogger {
	return asynqLogger{logger: l.With(slog.String("component", "asynq"))}
}

func (a asynqLogger) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

func (a asynqLogger) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
