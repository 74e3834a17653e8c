package inbox

import (
	"context"

	"github.com/md-rashed-zaman/counselbook/libs/db"
)

// Repository records consumed event ids per consumer group so redelivered
// messages are handled once.
type Repository struct {
	conn     db.Conn
	consumer string
}

func NewRepository(conn db.Conn, consumer string) *Repository {
	return &Repository{conn: conn, consumer: consumer}
}

// Record returns false when the event was already seen by this consumer.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO inbox_events (consumer, event_id, event_type)
		VALUES ($1, $2, $3)
	`, r.consumer, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
