package model

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Day is a UTC calendar date. All derived forms are computed on demand.
type Day struct {
	t time.Time
}

// NewDay truncates t to its UTC calendar date.
func NewDay(t time.Time) Day {
	u := t.UTC()
	return Day{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Day{}, eris.Wrapf(err, "model: parse day %q", s)
	}
	return NewDay(t), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return d.t }

// AddDays returns the day n days later (or earlier when n < 0).
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// Equal reports whether both values name the same calendar date.
func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// Before reports whether d is earlier than o.
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

// IsZero reports whether the day was never set.
func (d Day) IsZero() bool { return d.t.IsZero() }

// Year returns the four-digit year.
func (d Day) Year() int { return d.t.Year() }

// YY returns the two-digit year, zero padded.
func (d Day) YY() string { return fmt.Sprintf("%02d", d.t.Year()%100) }

// Month returns the zero-padded month number.
func (d Day) Month() string { return fmt.Sprintf("%02d", int(d.t.Month())) }

// DayOfMonth returns the zero-padded day of month.
func (d Day) DayOfMonth() string { return fmt.Sprintf("%02d", d.t.Day()) }

// DOY returns the zero-padded three-digit day of year.
func (d Day) DOY() string { return fmt.Sprintf("%03d", d.t.YearDay()) }

// YearDOY returns the YYYY-DDD key used by inventory tables.
func (d Day) YearDOY() string { return fmt.Sprintf("%04d-%s", d.t.Year(), d.DOY()) }

// ISO returns the dashed YYYY-MM-DD form.
func (d Day) ISO() string { return d.t.Format(time.DateOnly) }

func (d Day) String() string { return d.ISO() }
