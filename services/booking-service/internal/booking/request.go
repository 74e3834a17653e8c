package booking

import (
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/validate"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
)

// Identity says who is booking. Kind is one of model.Source*.
type Identity struct {
	Kind     string
	ClientID string
}

// Request is a booking request from any identity kind.
type Request struct {
	Identity Identity
	Name     string
	Email    string
	Phone    string
	Date     string
	Time     string
	Type     string
	Notes    string
}

func (r Request) normalized() Request {
	r.Identity.Kind = strings.ToLower(strings.TrimSpace(r.Identity.Kind))
	r.Identity.ClientID = strings.TrimSpace(r.Identity.ClientID)
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	if n := validate.NormalizePhone(r.Phone); n != "" {
		r.Phone = n
	}
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.Notes = strings.TrimSpace(r.Notes)
	return r
}

const maxNotesLen = 2000

func (e *Engine) validate(req Request, now time.Time) (time.Time, error) {
	switch req.Identity.Kind {
	case model.SourceAuthenticated:
		if req.Identity.ClientID == "" {
			return time.Time{}, invalid("client_id", "authenticated bookings require a client id")
		}
	case model.SourceGuest, model.SourcePublic:
		if req.Phone == "" {
			return time.Time{}, invalid("phone", "phone is required")
		}
	default:
		return time.Time{}, invalid("identity", "unknown identity kind "+req.Identity.Kind)
	}

	if req.Name == "" {
		return time.Time{}, invalid("name", "name is required")
	}
	if req.Email == "" {
		return time.Time{}, invalid("email", "email is required")
	}
	if !validate.Email(req.Email) {
		return time.Time{}, invalid("email", "email must look like name@domain.tld")
	}
	if req.Phone != "" && !validate.Phone(req.Phone) {
		return time.Time{}, invalid("phone", "phone must contain 7 to 15 digits")
	}
	if req.Type != model.TypeVirtual && req.Type != model.TypePhone {
		return time.Time{}, invalid("type", "type must be virtual or phone")
	}
	if len(req.Notes) > maxNotesLen {
		return time.Time{}, invalid("notes", "notes are too long")
	}

	zone := e.cal.Zone()
	date, err := civiltime.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, invalid("date", err.Error())
	}
	at, err := zone.Combine(date, req.Time)
	if err != nil {
		return time.Time{}, invalid("time", err.Error())
	}
	if !at.After(now) {
		return time.Time{}, invalid("time", "requested time has already passed")
	}
	if date.After(zone.Today(now).AddMonths(e.horizonMonths)) {
		return time.Time{}, invalid("date", "bookings open at most "+monthsLabel(e.horizonMonths)+" ahead")
	}
	if !e.cal.IsSlotStart(at) {
		return time.Time{}, invalid("time", "requested time is not an available consultation slot")
	}
	return at, nil
}

func monthsLabel(n int) string {
	if n == 1 {
		return "1 month"
	}
	return strconv.Itoa(n) + " months"
}
