package storage

import (
	"context"

	"github.com/md-rashed-zaman/counselbook/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one attempted delivery on one channel.
type Notification struct {
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Provider      string
	Status        string
	Error         string
}

type Repository struct {
	conn db.Conn
}

func NewRepository(conn db.Conn) *Repository {
	return &Repository{conn: conn}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO notifications (appointment_id, kind, channel, recipient, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Provider, n.Status, n.Error)
	return err
}
