// Package booking is the availability engine: it lists free consultation
// slots and writes bookings and cancellations behind the store's conflict guard.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

// Store is the booking store as the engine sees it. Create must reject a second
// confirmed appointment at the same instant with model.ErrSlotTaken.
type Store interface {
	Create(ctx context.Context, appt model.Appointment, events storage.EventBuilder) (model.Appointment, error)
	// Cancel must report ErrNotFound when ownerID is set and does not own the appointment.
	Cancel(ctx context.Context, id, ownerID, reason string, events storage.EventBuilder) (model.Appointment, bool, error)
	ListConfirmedBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
	List(ctx context.Context, clientID string, limit int) ([]model.Appointment, error)
}

type Engine struct {
	cal           availability.Calendar
	store         Store
	logger        *slog.Logger
	metrics       *metrics.Booking
	now           func() time.Time
	horizonMonths int
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHorizonMonths bounds how far ahead bookings are accepted (default 3).
func WithHorizonMonths(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.horizonMonths = n
		}
	}
}

func WithMetrics(m *metrics.Booking) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(cal availability.Calendar, store Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cal:           cal,
		store:         store,
		logger:        logger,
		now:           time.Now,
		horizonMonths: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Calendar() availability.Calendar {
	return e.cal
}

// ListAvailableSlots returns the grid slots of date that are after now and not
// held by a confirmed appointment. If the store cannot be queried the full
// candidate list is returned.
func (e *Engine) ListAvailableSlots(ctx context.Context, date civiltime.Date) []availability.Slot {
	candidates := e.cal.SlotsFor(date, e.now())
	if len(candidates) == 0 {
		return candidates
	}

	start, end := e.cal.Zone().DayBounds(date)
	queryStart := time.Now()
	booked, err := e.store.ListConfirmedBetween(ctx, start, end)
	e.metrics.ObserveSlotQuery(queryStart)
	if err != nil {
		e.logger.Warn("booked slot lookup failed; serving unfiltered slots", "err", err, "date", date.String())
		e.metrics.SlotsFailOpen()
		return candidates
	}

	taken := make(map[string]struct{}, len(booked))
	for _, a := range booked {
		if a.Confirmed() {
			taken[e.cal.Zone().Clock(a.ScheduledAt)] = struct{}{}
		}
	}
	return availability.Without(candidates, taken)
}

// CreateBooking validates req and writes a confirmed appointment plus its
// booked event in one transaction.
func (e *Engine) CreateBooking(ctx context.Context, req Request) (model.Appointment, error) {
	req = req.normalized()
	at, err := e.validate(req, e.now())
	if err != nil {
		e.metrics.Booking(req.Identity.Kind, "invalid")
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ClientID:        req.Identity.ClientID,
		Source:          req.Identity.Kind,
		ClientName:      req.Name,
		ClientEmail:     req.Email,
		ClientPhone:     req.Phone,
		ScheduledAt:     at,
		DurationMinutes: e.cal.SlotMinutes(),
		Type:            req.Type,
		Notes:           req.Notes,
		Status:          model.StatusConfirmed,
	}
	if req.Identity.Kind != model.SourceAuthenticated {
		appt.ClientID = ""
	}

	created, err := e.store.Create(ctx, appt, bookedEvents(e.cal.Zone()))
	if err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			e.metrics.Booking(req.Identity.Kind, "conflict")
			return model.Appointment{}, fmt.Errorf("%w: %s %s", ErrConflict, req.Date, req.Time)
		}
		e.metrics.Booking(req.Identity.Kind, "error")
		return model.Appointment{}, fmt.Errorf("create booking: %w", err)
	}

	e.metrics.Booking(req.Identity.Kind, "created")
	e.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"source", created.Source,
		"scheduled_at", created.ScheduledAt.UTC().Format(time.RFC3339),
	)
	return created, nil
}

// Canceller identifies who asks for a cancellation. Staff may cancel any
// appointment; a client only appointments booked under its own id.
type Canceller struct {
	ClientID string
	Staff    bool
}

// CancelBooking marks an appointment cancelled. Cancelling twice returns the
// stored record unchanged. An unknown id, or one the caller does not own,
// yields ErrNotFound.
func (e *Engine) CancelBooking(ctx context.Context, id, reason string, by Canceller) (model.Appointment, error) {
	if id == "" {
		return model.Appointment{}, invalid("appointment_id", "appointment id is required")
	}
	ownerID := ""
	if !by.Staff {
		if by.ClientID == "" {
			e.metrics.Cancellation("not_found")
			return model.Appointment{}, ErrNotFound
		}
		ownerID = by.ClientID
	}
	appt, changed, err := e.store.Cancel(ctx, id, ownerID, reason, cancelledEvents(e.cal.Zone()))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			e.metrics.Cancellation("not_found")
			return model.Appointment{}, ErrNotFound
		}
		e.metrics.Cancellation("error")
		return model.Appointment{}, fmt.Errorf("cancel booking: %w", err)
	}
	if !changed {
		e.metrics.Cancellation("already_cancelled")
		return appt, nil
	}
	e.metrics.Cancellation("cancelled")
	e.logger.Info("appointment cancelled", "appointment_id", appt.ID)
	return appt, nil
}

// ListAppointments returns recent appointments; a non-empty clientID restricts to that client.
func (e *Engine) ListAppointments(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	appts, err := e.store.List(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}
