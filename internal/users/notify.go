package users

import (
	"context"

	"github.com/odyssey-erp/odyssey-admin/internal/mailer"
)

// MailQueue hands a rendered message to the background worker.
type MailQueue interface {
	EnqueueMail(ctx context.Context, msg mailer.Message) error
}

// MailNotifier renders account emails and queues them for delivery.
type MailNotifier struct {
	Composer *mailer.Composer
	Queue    MailQueue
	LoginURL string
}

// Welcome queues the welcome email.
func (n MailNotifier) Welcome(ctx context.Context, u User) error {
	return n.send(ctx, mailer.TemplateWelcome, u)
}

// RolesChanged queues the role change email.
func (n MailNotifier) RolesChanged(ctx context.Context, u User) error {
	return n.send(ctx, mailer.TemplateRolesChanged, u)
}

func (n MailNotifier) send(ctx context.Context, template string, u User) error {
	msg, err := n.Composer.Compose(template, u.Email, mailer.Data{
		Name:     u.Name,
		Email:    u.Email,
		LoginURL: n.LoginURL,
		Roles:    u.RoleNames(),
	})
	if err != nil {
		return err
	}
	return n.Queue.EnqueueMail(ctx, msg)
}
