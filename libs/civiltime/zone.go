// Package civiltime converts between absolute instants and the firm's civil
// wall-clock time. Every date or clock string the portal accepts or renders
// goes through a Zone; nothing else should build offsets by hand.
package civiltime

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// DefaultZoneName is the firm's office zone.
	DefaultZoneName = "America/Los_Angeles"
)

// Date is a calendar day with no time-of-day or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// AddDays normalizes overflow the same way time.Date does.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) AddMonths(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) After(o Date) bool {
	return o.Before(d)
}

// Zone is a named IANA location. Arithmetic goes through the tz database so
// daylight-saving transitions are honoured.
type Zone struct {
	loc *time.Location
}

func Load(name string) (Zone, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultZoneName
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load zone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// MustLoad is for package-level defaults and tests.
func MustLoad(name string) Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

func (z Zone) Name() string {
	return z.Location().String()
}

// At returns the instant at which the wall clock in z reads date hour:minute.
func (z Zone) At(d Date, hour, minute int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, z.Location())
}

// DateOf returns the civil date of t in z.
func (z Zone) DateOf(t time.Time) Date {
	lt := t.In(z.Location())
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

// Clock renders t as "HH:MM" on the zone's wall clock.
func (z Zone) Clock(t time.Time) string {
	return t.In(z.Location()).Format(ClockLayout)
}

// DayBounds returns the first and last second of d in z: [00:00:00, 23:59:59].
func (z Zone) DayBounds(d Date) (time.Time, time.Time) {
	start := z.At(d, 0, 0)
	next := z.At(d.AddDays(1), 0, 0)
	return start, next.Add(-time.Second)
}

// Combine resolves a civil date and an "HH:MM" clock string to an instant.
func (z Zone) Combine(d Date, clock string) (time.Time, error) {
	c, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", clock)
	}
	return z.At(d, c.Hour(), c.Minute()), nil
}

// Today is the civil date of now in z.
func (z Zone) Today(now time.Time) Date {
	return z.DateOf(now)
}
