package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/counselbook/libs/config"
)

// Sender delivers one email. Implementations are swappable (SMTP, SendGrid, stub).
type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// FromEnv picks a sender from EMAIL_PROVIDER (smtp, sendgrid, stub).
func FromEnv(logger *slog.Logger) (Sender, error) {
	from := config.String("EMAIL_FROM", "no-reply@counselbook.local")
	fromName := config.String("EMAIL_FROM_NAME", "CounselBook")

	switch provider := strings.ToLower(config.String("EMAIL_PROVIDER", "smtp")); provider {
	case "smtp":
		return NewSMTPSender(SMTPConfig{
			Host:     config.String("SMTP_HOST", "localhost"),
			Port:     config.String("SMTP_PORT", "1025"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     from,
		}), nil
	case "sendgrid":
		apiKey, err := config.RequiredString("SENDGRID_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewSendGridSender(SendGridConfig{APIKey: apiKey, FromEmail: from, FromName: fromName}, logger), nil
	case "stub", "noop":
		return NewStubSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", provider)
	}
}

// StubSender logs instead of sending.
type StubSender struct {
	logger *slog.Logger
}

func NewStubSender(logger *slog.Logger) *StubSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubSender{logger: logger}
}

func (s *StubSender) ProviderID() string { return "email-stub" }

func (s *StubSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}
