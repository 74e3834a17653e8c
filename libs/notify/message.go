// Package notify renders client and firm notifications for consultations.
// Transports live in the email and sms subpackages.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/notify/email"
)

// Appointment is the subset of a booking a notification needs.
type Appointment struct {
	ID          string
	ClientName  string
	ClientEmail string
	ClientPhone string
	ScheduledAt time.Time
	Type        string
	Notes       string
}

// ReminderKind names the reminder thresholds.
type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder1h  ReminderKind = "1h"
)

// Templates renders messages in the firm's civil time zone.
type Templates struct {
	Zone     civiltime.Zone
	FirmName string
}

func (t Templates) firm() string {
	if t.FirmName == "" {
		return "the firm"
	}
	return t.FirmName
}

func (t Templates) when(at time.Time) string {
	local := at.In(t.Zone.Location())
	return local.Format("Monday, January 2, 2006 at 3:04 PM MST")
}

func meetingLine(kind string) string {
	if kind == "phone" {
		return "An attorney will call you at the number you provided."
	}
	return "You will receive a video link before the consultation."
}

func (t Templates) Confirmation(a Appointment) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", a.ClientName)
	fmt.Fprintf(&b, "Your %s consultation with %s is confirmed for %s.\n", a.Type, t.firm(), t.when(a.ScheduledAt))
	fmt.Fprintf(&b, "%s\n\n", meetingLine(a.Type))
	fmt.Fprintf(&b, "Reference: %s\n", a.ID)
	return email.Message{
		To:      a.ClientEmail,
		ToName:  a.ClientName,
		Subject: "Consultation confirmed: " + t.when(a.ScheduledAt),
		Body:    b.String(),
	}
}

func (t Templates) ConfirmationSMS(a Appointment) string {
	return fmt.Sprintf("%s: your %s consultation is confirmed for %s. Ref %s", t.firm(), a.Type, t.when(a.ScheduledAt), shortID(a.ID))
}

// Intake is the firm-side notice that a new consultation was booked.
func (t Templates) Intake(a Appointment, intakeAddress string) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s consultation booked for %s.\n\n", a.Type, t.when(a.ScheduledAt))
	fmt.Fprintf(&b, "Client: %s\nEmail: %s\n", a.ClientName, a.ClientEmail)
	if a.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", a.ClientPhone)
	}
	if a.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", a.Notes)
	}
	fmt.Fprintf(&b, "Appointment: %s\n", a.ID)
	return email.Message{
		To:      intakeAddress,
		Subject: fmt.Sprintf("New consultation: %s, %s", a.ClientName, t.when(a.ScheduledAt)),
		Body:    b.String(),
	}
}

func (t Templates) Cancellation(a Appointment, reason string) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", a.ClientName)
	fmt.Fprintf(&b, "Your consultation on %s has been cancelled.\n", t.when(a.ScheduledAt))
	if reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", reason)
	}
	fmt.Fprintf(&b, "\nYou can book a new time from the client portal.\n")
	return email.Message{
		To:      a.ClientEmail,
		ToName:  a.ClientName,
		Subject: "Consultation cancelled",
		Body:    b.String(),
	}
}

func (t Templates) Reminder(kind ReminderKind, a Appointment) email.Message {
	lead := "tomorrow"
	if kind == Reminder1h {
		lead = "in about an hour"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", a.ClientName)
	fmt.Fprintf(&b, "This is a reminder that your %s consultation with %s is %s: %s.\n", a.Type, t.firm(), lead, t.when(a.ScheduledAt))
	fmt.Fprintf(&b, "%s\n", meetingLine(a.Type))
	return email.Message{
		To:      a.ClientEmail,
		ToName:  a.ClientName,
		Subject: "Reminder: consultation " + lead,
		Body:    b.String(),
	}
}

func (t Templates) ReminderSMS(kind ReminderKind, a Appointment) string {
	lead := "tomorrow"
	if kind == Reminder1h {
		lead = "in 1 hour"
	}
	return fmt.Sprintf("Reminder from %s: your consultation is %s, %s.", t.firm(), lead, t.when(a.ScheduledAt))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
