package task

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date form sent by date pickers.
const DateLayout = "2006-01-02"

// ParseDueDate accepts an RFC 3339 timestamp or a YYYY-MM-DD date.
// An empty string means "no due date" and yields nil.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return &t, nil
	}
	return nil, &ValidationError{Field: "dueDate", Reason: "must be a YYYY-MM-DD date or RFC 3339 timestamp"}
}

// NormalizeTitle trims surrounding whitespace and rejects blank titles.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Reason: "is required"}
	}
	return title, nil
}
