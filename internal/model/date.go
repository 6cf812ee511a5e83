package model

import "time"

// DateLayout is the calendar-date format used by registration dates,
// service records and usage days.
const DateLayout = "2006-01-02"

// LocalDate formats t as a calendar date in t's own location.  Callers
// pass local times so that "today" matches the date stamped on records.
func LocalDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.Local)
}

// IsCalendarDate reports whether s is a valid YYYY-MM-DD date.
func IsCalendarDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}
