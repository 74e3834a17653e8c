// Package availability holds the firm's weekly business calendar and the slot
// grid derived from it. It never consults storage.
package availability

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
)

// Window is an operating window expressed in minutes after civil midnight.
type Window struct {
	Open  int
	Close int
}

// Hours builds a window on whole hours, e.g. Hours(9, 17).
func Hours(open, close int) Window {
	return Window{Open: open * 60, Close: close * 60}
}

// Slot is one bookable start on the grid.
type Slot struct {
	Start time.Time
	// Clock is the "HH:MM" wall-clock start in the calendar's zone.
	Clock string
}

// Calendar maps weekdays to operating windows. A weekday without a window is closed.
// The zero value is closed every day.
type Calendar struct {
	zone   civiltime.Zone
	weekly [7]*Window
	slot   int
}

const DefaultSlotMinutes = 30

// Default is the firm's schedule: weekdays 09:00-17:00, Saturday 09:00-14:00, Sunday closed.
func Default(zone civiltime.Zone) Calendar {
	c, _ := New(zone, map[time.Weekday]Window{
		time.Monday:    Hours(9, 17),
		time.Tuesday:   Hours(9, 17),
		time.Wednesday: Hours(9, 17),
		time.Thursday:  Hours(9, 17),
		time.Friday:    Hours(9, 17),
		time.Saturday:  Hours(9, 14),
	}, DefaultSlotMinutes)
	return c
}

func New(zone civiltime.Zone, weekly map[time.Weekday]Window, slotMinutes int) (Calendar, error) {
	if slotMinutes <= 0 {
		return Calendar{}, fmt.Errorf("slot duration must be positive, got %d", slotMinutes)
	}
	c := Calendar{zone: zone, slot: slotMinutes}
	for wd, w := range weekly {
		if w.Open < 0 || w.Close > 24*60 || w.Close <= w.Open {
			return Calendar{}, fmt.Errorf("invalid window for %s: %d-%d", wd, w.Open, w.Close)
		}
		c.weekly[wd] = &w
	}
	return c, nil
}

func (c Calendar) Zone() civiltime.Zone {
	return c.zone
}

func (c Calendar) SlotMinutes() int {
	return c.slot
}

func (c Calendar) SlotDuration() time.Duration {
	return time.Duration(c.slot) * time.Minute
}

// WindowFor reports the operating window of wd, or false when closed.
func (c Calendar) WindowFor(wd time.Weekday) (Window, bool) {
	w := c.weekly[wd]
	if w == nil {
		return Window{}, false
	}
	return *w, true
}

// Slots yields the grid starts of date that lie strictly after now, ascending.
// The sequence is restartable and depends only on (date, now).
func (c Calendar) Slots(date civiltime.Date, now time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		w, ok := c.WindowFor(date.Weekday())
		if !ok || c.slot <= 0 {
			return
		}
		for m := w.Open; m+c.slot <= w.Close; m += c.slot {
			start := c.zone.At(date, m/60, m%60)
			if !start.After(now) {
				continue
			}
			if !yield(Slot{Start: start, Clock: fmt.Sprintf("%02d:%02d", m/60, m%60)}) {
				return
			}
		}
	}
}

// SlotsFor collects Slots into a slice.
func (c Calendar) SlotsFor(date civiltime.Date, now time.Time) []Slot {
	return slices.Collect(c.Slots(date, now))
}

// IsSlotStart reports whether t is exactly one of the grid starts of its civil day.
func (c Calendar) IsSlotStart(t time.Time) bool {
	for s := range c.Slots(c.zone.DateOf(t), time.Time{}) {
		if s.Start.Equal(t) {
			return true
		}
	}
	return false
}

// Without removes slots whose wall-clock start appears in booked, keeping order.
func Without(slots []Slot, booked map[string]struct{}) []Slot {
	if len(booked) == 0 {
		return slots
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if _, taken := booked[s.Clock]; taken {
			continue
		}
		out = append(out, s)
	}
	return out
}
