package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
)

// EventBuilder derives the outbox events to commit alongside a state change.
type EventBuilder func(model.Appointment) ([]outbox.Event, error)

type BookingRepository struct {
	conn   db.Conn
	outbox *outbox.Repository
}

func NewBookingRepository(conn db.Conn, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{conn: conn, outbox: outboxRepo}
}

const appointmentColumns = `
	id::text, COALESCE(client_id, ''), source, client_name, client_email, client_phone,
	scheduled_at, duration_minutes, type, notes, status, reminder_24h_sent, reminder_1h_sent,
	cancelled_at, COALESCE(cancel_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ClientID,
		&appt.Source,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&appt.ScheduledAt,
		&appt.DurationMinutes,
		&appt.Type,
		&appt.Notes,
		&appt.Status,
		&appt.RemindersSent.TwentyFourHour,
		&appt.RemindersSent.OneHour,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a confirmed appointment and its events in one transaction.
// A confirmed appointment already holding the instant surfaces as model.ErrSlotTaken.
func (r *BookingRepository) Create(ctx context.Context, appt model.Appointment, events EventBuilder) (model.Appointment, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(client_id, source, client_name, client_email, client_phone, scheduled_at, duration_minutes, type, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'confirmed')
		RETURNING `+appointmentColumns,
		nullable(appt.ClientID), appt.Source, appt.ClientName, appt.ClientEmail, appt.ClientPhone,
		appt.ScheduledAt.UTC(), appt.DurationMinutes, appt.Type, appt.Notes))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Appointment{}, model.ErrSlotTaken
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	if err := r.insertEvents(ctx, tx, created, events); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err) {
			return model.Appointment{}, model.ErrSlotTaken
		}
		return model.Appointment{}, fmt.Errorf("commit booking: %w", err)
	}
	return created, nil
}

// Cancel flips a confirmed appointment to cancelled under a row lock.
// An already-cancelled appointment is returned unchanged with changed=false and no events.
// A non-empty ownerID restricts the cancellation to that client's appointments;
// anyone else's id is reported as ErrNotFound.
func (r *BookingRepository) Cancel(ctx context.Context, id, ownerID, reason string, events EventBuilder) (model.Appointment, bool, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id::text = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Appointment{}, false, model.ErrNotFound
		}
		return model.Appointment{}, false, fmt.Errorf("load appointment: %w", err)
	}
	if ownerID != "" && appt.ClientID != ownerID {
		return model.Appointment{}, false, model.ErrNotFound
	}
	if appt.Status == model.StatusCancelled {
		return appt, false, nil
	}

	var cancelledAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $2
		WHERE id::text = $1
		RETURNING cancelled_at
	`, id, nullable(reason)).Scan(&cancelledAt)
	if err != nil {
		return model.Appointment{}, false, fmt.Errorf("cancel appointment: %w", err)
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.CancelReason = reason

	if err := r.insertEvents(ctx, tx, appt, events); err != nil {
		return model.Appointment{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, fmt.Errorf("commit cancellation: %w", err)
	}
	return appt, true, nil
}

func (r *BookingRepository) insertEvents(ctx context.Context, tx pgx.Tx, appt model.Appointment, events EventBuilder) error {
	if events == nil || r.outbox == nil {
		return nil
	}
	evts, err := events(appt)
	if err != nil {
		return err
	}
	for _, evt := range evts {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("write outbox event %s: %w", evt.EventType, err)
		}
	}
	return nil
}

// ListConfirmedBetween returns confirmed appointments with scheduled_at in [start, end], ascending.
func (r *BookingRepository) ListConfirmedBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND scheduled_at >= $1
			AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// List returns the most recent appointments, optionally restricted to one client.
func (r *BookingRepository) List(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR client_id = $1)
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}
