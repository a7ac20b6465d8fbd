package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date key format used for ledgers and snapshots.
// It sorts lexicographically in date order.
const DateLayout = "2006-01-02"

// ValidateDate checks that s is a YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return nil
}

// AddDays shifts a YYYY-MM-DD date by n days (n may be negative).
func AddDays(date string, n int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// Today formats now as a calendar date in now's location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}
