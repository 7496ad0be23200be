package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in storage
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a normalised day
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, NewValidationError("date", "expected YYYY-MM-DD, got "+s)
	}
	return t, nil
}

// FormatDay renders the day of t as YYYY-MM-DD
func FormatDay(t time.Time) string {
	return Day(t).Format(DateLayout)
}
