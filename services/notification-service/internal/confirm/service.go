// Package confirm sends booking confirmations, firm intake notices and
// cancellation notices. Every attempted send is written to the notification log.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/notify"
	"github.com/md-rashed-zaman/counselbook/libs/notify/email"
	"github.com/md-rashed-zaman/counselbook/libs/notify/sms"
	"github.com/md-rashed-zaman/counselbook/libs/validate"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	CodeInvalidArgument = "invalid-argument"
	CodeInternal        = "internal"
)

// Error is returned to callers with a stable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Details describes the appointment a notification is about.
type Details struct {
	AppointmentID string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	ScheduledAt   time.Time
	Type          string
	Notes         string
	CancelReason  string
}

func (d Details) appointment() notify.Appointment {
	return notify.Appointment{
		ID:          d.AppointmentID,
		ClientName:  d.ClientName,
		ClientEmail: d.ClientEmail,
		ClientPhone: d.ClientPhone,
		ScheduledAt: d.ScheduledAt,
		Type:        d.Type,
		Notes:       d.Notes,
	}
}

// Recorder persists notification attempts.
type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

const (
	kindConfirmation = "confirmation"
	kindIntake       = "intake"
	kindCancellation = "cancellation"
)

type Service struct {
	email     email.Sender
	sms       sms.Sender
	templates notify.Templates
	intake    string
	log       Recorder
	logger    *slog.Logger
	sends     *prometheus.CounterVec
}

type Config struct {
	Templates notify.Templates
	// IntakeAddress receives the firm-side notice of each new booking. Empty disables it.
	IntakeAddress string
	Registerer    prometheus.Registerer
}

func NewService(emailSender email.Sender, smsSender sms.Sender, log Recorder, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	sends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counselbook",
		Name:      "notifications_total",
		Help:      "Notification sends by kind, channel and status.",
	}, []string{"kind", "channel", "status"})
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(sends)
	}
	return &Service{
		email:     emailSender,
		sms:       smsSender,
		templates: cfg.Templates,
		intake:    strings.TrimSpace(cfg.IntakeAddress),
		log:       log,
		logger:    logger,
		sends:     sends,
	}
}

func validateClient(d Details) *Error {
	switch {
	case strings.TrimSpace(d.AppointmentID) == "":
		return &Error{Code: CodeInvalidArgument, Message: "appointment id is required"}
	case strings.TrimSpace(d.ClientName) == "":
		return &Error{Code: CodeInvalidArgument, Message: "client name is required"}
	case strings.TrimSpace(d.ClientEmail) == "":
		return &Error{Code: CodeInvalidArgument, Message: "client email is required"}
	case !validate.Email(d.ClientEmail):
		return &Error{Code: CodeInvalidArgument, Message: "client email is malformed"}
	}
	return nil
}

// SendClientAppointmentConfirmation emails the client and, when a phone is on
// file, sends an SMS. Only the email outcome decides the result.
func (s *Service) SendClientAppointmentConfirmation(ctx context.Context, d Details) (Result, error) {
	if verr := validateClient(d); verr != nil {
		return Result{Success: false, Message: verr.Message}, verr
	}
	appt := d.appointment()

	if err := s.sendEmail(ctx, kindConfirmation, d.AppointmentID, s.templates.Confirmation(appt)); err != nil {
		return Result{Success: false, Message: "confirmation email could not be sent"},
			&Error{Code: CodeInternal, Message: err.Error()}
	}
	if d.ClientPhone != "" && s.sms != nil {
		_ = s.sendSMS(ctx, kindConfirmation, d.AppointmentID, d.ClientPhone, s.templates.ConfirmationSMS(appt))
	}
	return Result{Success: true, Message: "confirmation sent to " + d.ClientEmail}, nil
}

// SendIntakeNotice tells the firm's intake desk about a new booking.
func (s *Service) SendIntakeNotice(ctx context.Context, d Details) error {
	if s.intake == "" {
		s.logger.Debug("intake notice skipped, no intake address", "appointment_id", d.AppointmentID)
		return nil
	}
	if strings.TrimSpace(d.AppointmentID) == "" {
		return &Error{Code: CodeInvalidArgument, Message: "appointment id is required"}
	}
	if err := s.sendEmail(ctx, kindIntake, d.AppointmentID, s.templates.Intake(d.appointment(), s.intake)); err != nil {
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
	return nil
}

func (s *Service) SendCancellationNotice(ctx context.Context, d Details) error {
	if verr := validateClient(d); verr != nil {
		return verr
	}
	if err := s.sendEmail(ctx, kindCancellation, d.AppointmentID, s.templates.Cancellation(d.appointment(), d.CancelReason)); err != nil {
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
	return nil
}

func (s *Service) sendEmail(ctx context.Context, kind, appointmentID string, msg email.Message) error {
	err := s.email.Send(ctx, msg)
	s.record(ctx, kind, "email", appointmentID, msg.To, s.email.ProviderID(), err)
	if err != nil {
		s.logger.Error("email send failed", "kind", kind, "appointment_id", appointmentID, "err", err)
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	return nil
}

func (s *Service) sendSMS(ctx context.Context, kind, appointmentID, to, body string) error {
	err := s.sms.Send(ctx, to, body)
	s.record(ctx, kind, "sms", appointmentID, to, s.sms.ProviderID(), err)
	if err != nil {
		s.logger.Warn("sms send failed", "kind", kind, "appointment_id", appointmentID, "err", err)
	}
	return err
}

func (s *Service) record(ctx context.Context, kind, channel, appointmentID, recipient, provider string, sendErr error) {
	n := storage.Notification{
		AppointmentID: appointmentID,
		Kind:          kind,
		Channel:       channel,
		Recipient:     recipient,
		Provider:      provider,
		Status:        storage.StatusSent,
	}
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
	}
	s.sends.WithLabelValues(kind, channel, n.Status).Inc()
	if s.log == nil {
		return
	}
	if err := s.log.Insert(ctx, n); err != nil {
		s.logger.Error("failed to persist notification", "kind", kind, "appointment_id", appointmentID, "err", err)
	}
}
