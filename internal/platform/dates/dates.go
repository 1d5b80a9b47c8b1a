// Package dates provides calendar-date parsing and bucket normalization
// for tracked goals. All values are calendar dates at midnight UTC;
// time-of-day never participates in comparisons.
package dates

import (
	"fmt"
	"time"
)

// Frequency is the cadence at which a tracked item recurs.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case Daily, Weekly, Monthly:
		return Frequency(s), nil
	}
	return "", fmt.Errorf("invalid frequency: %q", s)
}

// WireFormat is the date layout used on the wire and in entry rows.
const WireFormat = "01-02-2006"

// isoFallback accepts dates whose first ten bytes are YYYY-MM-DD.
const isoFallback = "2006-01-02"

// Parse reads a date in the MM-DD-YYYY wire format, falling back to a
// YYYY-MM-DD prefix. Only these two layouts are accepted.
func Parse(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(WireFormat, s, time.UTC); err == nil {
		return t, nil
	}
	if len(s) >= len(isoFallback) {
		if t, err := time.ParseInLocation(isoFallback, s[:len(isoFallback)], time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %q", s)
}

// Format renders a calendar date in the MM-DD-YYYY wire format.
func Format(t time.Time) string {
	return t.Format(WireFormat)
}

// Truncate drops time-of-day, leaving the calendar date at midnight UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bucket maps a date to the canonical date of its tracking period:
// daily is the date itself, weekly the Monday of that week (Sunday maps
// back six days), monthly the first of the month. Bucket is idempotent.
func Bucket(t time.Time, f Frequency) time.Time {
	t = Truncate(t)
	switch f {
	case Weekly:
		offset := int(t.Weekday()) - int(time.Monday)
		if t.Weekday() == time.Sunday {
			offset = 6
		}
		return t.AddDate(0, 0, -offset)
	case Monthly:
		y, m, _ := t.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// IsBoundary reports whether entries for the given frequency may be
// materialized on this date: every day for daily items, Mondays for
// weekly items, the first of the month for monthly items.
func IsBoundary(t time.Time, f Frequency) bool {
	switch f {
	case Weekly:
		return t.Weekday() == time.Monday
	case Monthly:
		return t.Day() == 1
	default:
		return true
	}
}
