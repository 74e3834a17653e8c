package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/services/scheduler-service/internal/sweeper"
)

type ReminderRepository struct {
	conn db.Conn
}

func NewReminderRepository(conn db.Conn) *ReminderRepository {
	return &ReminderRepository{conn: conn}
}

// ListScheduledBetween returns every appointment in [start, end], cancelled ones
// included, so the sweeper can count them as skipped.
func (r *ReminderRepository) ListScheduledBetween(ctx context.Context, start, end time.Time) ([]sweeper.Appointment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, client_name, client_email, client_phone, scheduled_at, type, status,
		       reminder_24h_sent, reminder_1h_sent
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []sweeper.Appointment
	for rows.Next() {
		var a sweeper.Appointment
		if err := rows.Scan(
			&a.ID,
			&a.ClientName,
			&a.ClientEmail,
			&a.ClientPhone,
			&a.ScheduledAt,
			&a.Type,
			&a.Status,
			&a.Reminder24hSent,
			&a.Reminder1hSent,
		); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// MarkReminded sets the flag for kind on every id in a single statement.
func (r *ReminderRepository) MarkReminded(ctx context.Context, kind sweeper.Kind, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var query string
	switch kind {
	case sweeper.Kind24h:
		query = `UPDATE appointments SET reminder_24h_sent = TRUE WHERE id = ANY($1::uuid[])`
	case sweeper.Kind1h:
		query = `UPDATE appointments SET reminder_1h_sent = TRUE WHERE id = ANY($1::uuid[])`
	default:
		return 0, fmt.Errorf("unknown reminder kind %q", kind)
	}
	tag, err := r.conn.Exec(ctx, query, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
