package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/counselbook/libs/notify"
	"github.com/md-rashed-zaman/counselbook/libs/notify/email"
	"github.com/md-rashed-zaman/counselbook/libs/notify/sms"
)

// DirectNotifier sends reminders straight from the sweeper process: email
// always, SMS when the client left a phone number. Only the email result decides
// whether the reminder counts as sent.
type DirectNotifier struct {
	email     email.Sender
	sms       sms.Sender
	templates notify.Templates
	logger    *slog.Logger
}

func NewDirectNotifier(emailSender email.Sender, smsSender sms.Sender, templates notify.Templates, logger *slog.Logger) *DirectNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectNotifier{email: emailSender, sms: smsSender, templates: templates, logger: logger}
}

func (n *DirectNotifier) Remind(ctx context.Context, kind Kind, appt Appointment) error {
	rk := notify.Reminder24h
	if kind == Kind1h {
		rk = notify.Reminder1h
	}
	details := notify.Appointment{
		ID:          appt.ID,
		ClientName:  appt.ClientName,
		ClientEmail: appt.ClientEmail,
		ClientPhone: appt.ClientPhone,
		ScheduledAt: appt.ScheduledAt,
		Type:        appt.Type,
	}

	if appt.ClientPhone != "" && n.sms != nil {
		if err := n.sms.Send(ctx, appt.ClientPhone, n.templates.ReminderSMS(rk, details)); err != nil {
			n.logger.Warn("reminder sms failed", "appointment_id", appt.ID, "provider", n.sms.ProviderID(), "err", err)
		}
	}
	if err := n.email.Send(ctx, n.templates.Reminder(rk, details)); err != nil {
		return fmt.Errorf("%s reminder email via %s: %w", kind, n.email.ProviderID(), err)
	}
	return nil
}
