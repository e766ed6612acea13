package domain

import (
	"strings"
	"time"
)

const (
	// DuePrefix starts a due-date line in an issue body, or a due-date label
	DuePrefix = "due:"
	// DueLayout is the only accepted due-date format
	DueLayout = "2006-01-02"

	dueSoonDays = 3
)

// ParseDue scans the body line by line for "due: YYYY-MM-DD", then the labels
// for "due:YYYY-MM-DD". The first well-formed date wins; malformed ones are skipped.
// The result is a UTC midnight date, zero when nothing was found.
func ParseDue(body string, labels []string) time.Time {
	for _, line := range strings.Split(body, "\n") {
		if d, ok := parseDueLine(line); ok {
			return d
		}
	}
	for _, label := range labels {
		if d, ok := parseDueLine(label); ok {
			return d
		}
	}
	return time.Time{}
}

func parseDueLine(line string) (time.Time, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(strings.ToLower(line), DuePrefix) {
		return time.Time{}, false
	}
	d, err := time.Parse(DueLayout, strings.TrimSpace(line[len(DuePrefix):]))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Today returns the calendar date of now in loc, as UTC midnight so it
// compares directly with dates from ParseDue
func Today(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Classify ranks a due date against today. A zero due date ranks UrgencyNone.
func Classify(due, today time.Time) Urgency {
	if due.IsZero() {
		return UrgencyNone
	}
	days := int(due.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyDueToday
	case days <= dueSoonDays:
		return UrgencyDueSoon
	default:
		return UrgencyNone
	}
}

// Marker is the display suffix for an urgency, empty for UrgencyNone
func (x Urgency) Marker() string {
	switch x {
	case UrgencyOverdue:
		return " [overdue]"
	case UrgencyDueToday:
		return " [due today]"
	case UrgencyDueSoon:
		return " [due soon]"
	default:
		return ""
	}
}
