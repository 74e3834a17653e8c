package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// appointmentEvent mirrors the booking service's event payload.
type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone"`
	ScheduledAt   string `json:"scheduled_at"`
	Type          string `json:"type"`
	Notes         string `json:"notes"`
	CancelReason  string `json:"cancel_reason"`
}

// HandleEvent dispatches one booking event. Malformed or invalid events are
// logged and dropped; only delivery failures are returned.
func (s *Service) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	if eventType != EventAppointmentBooked && eventType != EventAppointmentCancelled {
		s.logger.Debug("ignoring event", "event_type", eventType)
		return nil
	}

	var evt appointmentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		s.logger.Error("invalid appointment event", "event_type", eventType, "err", err)
		return nil
	}
	at, err := time.Parse(time.RFC3339, evt.ScheduledAt)
	if err != nil {
		s.logger.Error("invalid scheduled_at", "event_type", eventType, "appointment_id", evt.AppointmentID, "err", err)
		return nil
	}
	d := Details{
		AppointmentID: evt.AppointmentID,
		ClientName:    evt.ClientName,
		ClientEmail:   evt.ClientEmail,
		ClientPhone:   evt.ClientPhone,
		ScheduledAt:   at,
		Type:          evt.Type,
		Notes:         evt.Notes,
		CancelReason:  evt.CancelReason,
	}

	switch eventType {
	case EventAppointmentBooked:
		_, confirmErr := s.SendClientAppointmentConfirmation(ctx, d)
		return errors.Join(
			s.dropInvalid(eventType, d.AppointmentID, confirmErr),
			s.dropInvalid(eventType, d.AppointmentID, s.SendIntakeNotice(ctx, d)),
		)
	default:
		return s.dropInvalid(eventType, d.AppointmentID, s.SendCancellationNotice(ctx, d))
	}
}

// dropInvalid swallows invalid-argument errors so bad events are not redelivered.
func (s *Service) dropInvalid(eventType, appointmentID string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Code == CodeInvalidArgument {
		s.logger.Warn("appointment event rejected", "event_type", eventType, "appointment_id", appointmentID, "err", err)
		return nil
	}
	return err
}
