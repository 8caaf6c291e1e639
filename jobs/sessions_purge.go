package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
)

// SessionPurger deletes expired session rows and reports how many went.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// PurgeSessionsJob removes expired session records.
type PurgeSessionsJob struct {
	Purger  SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// Handle processes TaskPurgeSessions tasks.
func (j *PurgeSessionsJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("purge sessions: purger not configured")
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tracker := j.Metrics.Track(TaskPurgeSessions)
	n, err := j.Purger.PurgeExpiredSessions(ctx)
	if err := tracker.End(err); err != nil {
		j.logger().Error("purge sessions", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurgedSessions(n)
	j.logger().Info("expired sessions purged", slog.Int64("count", n))
	return nil
}

func (j *PurgeSessionsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
