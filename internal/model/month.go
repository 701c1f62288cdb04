package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMonth is returned when a month string is not in YYYY-MM form.
var ErrInvalidMonth = errors.New("invalid month, expected YYYY-MM")

const monthLayout = "2006-01"

// Month is a calendar month in UTC.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	if len(s) != len(monthLayout) {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t, evaluated in UTC.
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

// String formats the month as "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Start returns the first instant of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month. December rolls into January.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Range returns the half-open interval [Start, End).
func (m Month) Range() (start, end time.Time) {
	return m.Start(), m.End()
}

// Add returns the month n months away from m.
func (m Month) Add(n int) Month {
	return MonthOf(m.Start().AddDate(0, n, 0))
}

// Contains reports whether t falls inside the month.
func (m Month) Contains(t time.Time) bool {
	start, end := m.Range()
	return !t.Before(start) && t.Before(end)
}
