package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	d, err := time.Parse(DueLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseDue(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		labels []string
		want   time.Time
	}{
		{name: "body line", body: "summary\nDue: 2026-10-20\nmore", want: date("2026-10-20")},
		{name: "case and whitespace", body: "   DUE:   2026-01-02  ", want: date("2026-01-02")},
		{name: "first match wins", body: "due: 2026-03-01\ndue: 2026-04-01", want: date("2026-03-01")},
		{name: "malformed body line skipped", body: "due: tomorrow\ndue: 2026-05-05", want: date("2026-05-05")},
		{name: "label fallback", body: "no date here", labels: []string{"type:bug", "due:2026-07-07"}, want: date("2026-07-07")},
		{name: "body beats label", body: "due: 2026-01-01", labels: []string{"due:2026-12-31"}, want: date("2026-01-01")},
		{name: "malformed label ignored", labels: []string{"due:31/12/2026"}},
		{name: "prefix must start the line", body: "the due: 2026-01-01 date"},
		{name: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDue(tt.body, tt.labels))
		})
	}
}

func TestClassify(t *testing.T) {
	today := date("2026-10-14")
	tests := []struct {
		due  time.Time
		want Urgency
	}{
		{due: time.Time{}, want: UrgencyNone},
		{due: date("2026-10-13"), want: UrgencyOverdue},
		{due: date("2025-01-01"), want: UrgencyOverdue},
		{due: date("2026-10-14"), want: UrgencyDueToday},
		{due: date("2026-10-15"), want: UrgencyDueSoon},
		{due: date("2026-10-17"), want: UrgencyDueSoon},
		{due: date("2026-10-18"), want: UrgencyNone},
		{due: date("2027-10-14"), want: UrgencyNone},
	}
	for _, tt := range tests {
		name := "unset"
		if !tt.due.IsZero() {
			name = tt.due.Format(DueLayout)
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.due, today))
		})
	}
}

func TestTodayUsesReferenceZone(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	// 20:00 UTC on the 13th is already the 14th in JST
	now := time.Date(2026, 10, 13, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, date("2026-10-14"), Today(now, jst))
	assert.Equal(t, date("2026-10-13"), Today(now, time.UTC))
}

func TestUrgencyMarker(t *testing.T) {
	assert.Equal(t, " [overdue]", UrgencyOverdue.Marker())
	assert.Equal(t, " [due today]", UrgencyDueToday.Marker())
	assert.Equal(t, " [due soon]", UrgencyDueSoon.Marker())
	assert.Empty(t, UrgencyNone.Marker())
	assert.Less(t, int(UrgencyOverdue), int(UrgencyNone))
}
