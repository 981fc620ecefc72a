// Package dateutil provides whole-calendar-day date handling.
//
// All engine date math is done in UTC at midnight: a Date has no time-of-day
// component and no timezone beyond UTC, so offset arithmetic is immune to DST
// shifts and "same day" comparisons are exact.
package dateutil

import (
	"fmt"
	"time"
)

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

// Date is a calendar date pinned to UTC midnight.
//
// The zero value is the zero time and reports IsZero() == true.
type Date struct {
	t time.Time
}

// New builds a Date from calendar components.
// Out-of-range components normalize per time.Date (Jan 32 -> Feb 1).
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t.UTC()}, nil
}

// FromTime truncates an arbitrary instant to its UTC calendar date.
func FromTime(t time.Time) Date {
	u := t.UTC()
	return New(u.Year(), u.Month(), u.Day())
}

// Today returns the current UTC calendar date.
func Today() Date { return FromTime(time.Now()) }

// AddDays returns the date offset by n whole calendar days.
// n may be negative; zero returns the receiver unchanged.
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysUntil returns the signed number of days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t) / (24 * time.Hour))
}

func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) IsZero() bool           { return d.t.IsZero() }

// Time returns the underlying UTC-midnight instant.
func (d Date) Time() time.Time { return d.t }

// String formats as YYYY-MM-DD.
func (d Date) String() string { return d.t.Format(Layout) }

// MarshalJSON encodes as a quoted YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted YYYY-MM-DD string or the empty string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	s = s[1 : len(s)-1]
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
