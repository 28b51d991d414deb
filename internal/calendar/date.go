// Package calendar models plain meeting dates without a time-of-day or zone.
package calendar

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Layout is the only textual form a Date accepts and renders.
const Layout = "2006-01-02"

// ErrInvalidDate indicates the input is not a YYYY-MM-DD calendar date.
var ErrInvalidDate = errors.New("invalid date, use YYYY-MM-DD")

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Date is a calendar day. The zero value is not a valid date.
type Date struct {
	year  int
	month time.Month
	day   int
}

// New builds a Date from its components, normalising overflow the way time.Date does.
func New(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime keeps the year, month and day of t as seen in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// Parse normalises raw input into a Date. Timestamps are truncated at the
// first 'T' so "2026-03-07T00:00:00Z" and "2026-03-07" are the same day.
func Parse(raw string) (Date, error) {
	value := strings.TrimSpace(raw)
	if idx := strings.IndexByte(value, 'T'); idx >= 0 {
		value = value[:idx]
	}
	if !datePattern.MatchString(value) {
		return Date{}, ErrInvalidDate
	}
	t, err := time.ParseInLocation(Layout, value, time.UTC)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return FromTime(t), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(raw string) Date {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(Layout)
}

// Weekday is computed on UTC midnight, so it never depends on the host zone.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// AddDays moves d by n calendar days.
func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

func (d Date) Before(other Date) bool { return d.Time().Before(other.Time()) }

func (d Date) After(other Date) bool { return d.Time().After(other.Time()) }

func (d Date) Equal(other Date) bool { return d == other }

// PreviousSameWeekday walks back from the day before d to the first day
// sharing d's weekday.
func (d Date) PreviousSameWeekday() Date {
	target := d.Weekday()
	candidate := d.AddDays(-1)
	for candidate.Weekday() != target {
		candidate = candidate.AddDays(-1)
	}
	return candidate
}

// NextWeekday returns the first day on or after d falling on wd.
func (d Date) NextWeekday(wd time.Weekday) Date {
	candidate := d
	for candidate.Weekday() != wd {
		candidate = candidate.AddDays(1)
	}
	return candidate
}

// MarshalJSON renders the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts anything Parse accepts.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
