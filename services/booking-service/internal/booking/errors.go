package booking

import (
	"errors"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
)

var (
	// ErrConflict means the requested slot already holds a confirmed appointment.
	ErrConflict = errors.New("requested slot is already booked")
	ErrNotFound = model.ErrNotFound
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
