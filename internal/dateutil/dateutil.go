package dateutil

import (
	"strings"
	"time"
)

// Layout is the date format used by every request and query parameter.
const Layout = "2006-01-02"

// ParseOptional parses a YYYY-MM-DD string. Empty input returns nil.
func ParseOptional(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Day truncates t to midnight UTC so date-only comparisons ignore clock time.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Within reports whether day lies in [start, end]; nil bounds are open.
func Within(day time.Time, start, end *time.Time) bool {
	day = Day(day)
	if start != nil && day.Before(Day(*start)) {
		return false
	}
	if end != nil && day.After(Day(*end)) {
		return false
	}
	return true
}
