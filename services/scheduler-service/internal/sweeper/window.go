package sweeper

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
)

// Kind is a reminder threshold. Each kind owns one flag on the appointment.
type Kind string

const (
	Kind24h Kind = "24h"
	Kind1h  Kind = "1h"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Kind24h, Kind1h:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown reminder kind %q (want 24h or 1h)", s)
}

// Window is an inclusive [Start, End] range of scheduled instants.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WindowFor computes the target window of a sweep of kind run at now.
//
//	24h: all of tomorrow in the civil zone, [00:00:00, 23:59:59]
//	1h:  [now+45m, now+75m]
func WindowFor(kind Kind, zone civiltime.Zone, now time.Time) (Window, error) {
	switch kind {
	case Kind24h:
		start, end := zone.DayBounds(zone.Today(now).AddDays(1))
		return Window{Start: start, End: end}, nil
	case Kind1h:
		return Window{Start: now.Add(45 * time.Minute), End: now.Add(75 * time.Minute)}, nil
	}
	return Window{}, fmt.Errorf("unknown reminder kind %q", kind)
}
