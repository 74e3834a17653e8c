package model

import (
	"errors"
	"time"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"

	TypeVirtual = "virtual"
	TypePhone   = "phone"

	SourceAuthenticated = "authenticated"
	SourceGuest         = "guest"
	SourcePublic        = "public"

	DurationMinutes = 30
)

var (
	// ErrSlotTaken reports that another confirmed appointment already holds the instant.
	ErrSlotTaken = errors.New("slot already has a confirmed appointment")
	ErrNotFound  = errors.New("appointment not found")
)

type RemindersSent struct {
	TwentyFourHour bool
	OneHour        bool
}

type Appointment struct {
	ID              string
	ClientID        string
	Source          string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	ScheduledAt     time.Time
	DurationMinutes int
	Type            string
	Notes           string
	Status          string
	RemindersSent   RemindersSent
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
}

func (a Appointment) Confirmed() bool {
	return a.Status == StatusConfirmed
}
