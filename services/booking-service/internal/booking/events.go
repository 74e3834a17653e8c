package booking

import (
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

// AppointmentPayload is the JSON body of booking.appointment.* events.
type AppointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	ClientID        string `json:"client_id,omitempty"`
	Source          string `json:"source"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	ClientPhone     string `json:"client_phone,omitempty"`
	ScheduledAt     string `json:"scheduled_at"`
	LocalDate       string `json:"local_date"`
	LocalTime       string `json:"local_time"`
	Timezone        string `json:"timezone"`
	DurationMinutes int    `json:"duration_minutes"`
	Type            string `json:"type"`
	Notes           string `json:"notes,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
}

func payloadFor(zone civiltime.Zone, a model.Appointment) AppointmentPayload {
	p := AppointmentPayload{
		AppointmentID:   a.ID,
		ClientID:        a.ClientID,
		Source:          a.Source,
		ClientName:      a.ClientName,
		ClientEmail:     a.ClientEmail,
		ClientPhone:     a.ClientPhone,
		ScheduledAt:     a.ScheduledAt.UTC().Format(time.RFC3339),
		LocalDate:       zone.DateOf(a.ScheduledAt).String(),
		LocalTime:       zone.Clock(a.ScheduledAt),
		Timezone:        zone.Name(),
		DurationMinutes: a.DurationMinutes,
		Type:            a.Type,
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
	}
	if a.CancelledAt != nil {
		p.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return p
}

func eventsOf(zone civiltime.Zone, eventType string) storage.EventBuilder {
	return func(a model.Appointment) ([]outbox.Event, error) {
		evt, err := outbox.NewAppointmentEvent(a.ID, eventType, payloadFor(zone, a))
		if err != nil {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	}
}

func bookedEvents(zone civiltime.Zone) storage.EventBuilder {
	return eventsOf(zone, outbox.EventAppointmentBooked)
}

func cancelledEvents(zone civiltime.Zone) storage.EventBuilder {
	return eventsOf(zone, outbox.EventAppointmentCancelled)
}
