package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-admin/internal/mailer"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskPurgeSessions removes expired session rows.
	TaskPurgeSessions = "auth:sessions:purge"
	// PurgeSessionsSchedule runs the purge hourly.
	PurgeSessionsSchedule = "@hourly"
)

// NewSendEmailTask constructs an Asynq task carrying a rendered message.
func NewSendEmailTask(msg mailer.Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPurgeSessionsTask builds the session purge task.
func NewPurgeSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeSessions, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
