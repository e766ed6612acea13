package domain

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// StatusLabelPrefix marks labels that carry a workflow Status
const StatusLabelPrefix = "status:"

// Issue is a snapshot of a tracker item, fetched fresh for every render
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     State     `json:"state"`
	Labels    []string  `json:"labels"`
	Assignee  string    `json:"assignee,omitempty"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the issue is in the open lifecycle state
func (i *Issue) IsOpen() bool {
	return i.State == StateOpen
}

// HasLabel matches a label name case-insensitively
func (i *Issue) HasLabel(name string) bool {
	return lo.ContainsBy(i.Labels, func(label string) bool {
		return strings.EqualFold(label, name)
	})
}

// Matches reports whether the issue carries every filter label, ignoring
// case like the tracker does. An empty filter set matches everything.
func (i *Issue) Matches(filters []string) bool {
	return lo.EveryBy(filters, i.HasLabel)
}

// Status returns the workflow status named by the first "status:" label
func (i *Issue) Status() (Status, bool) {
	for _, label := range i.Labels {
		if !strings.HasPrefix(strings.ToLower(label), StatusLabelPrefix) {
			continue
		}
		status, err := ParseStatus(label[len(StatusLabelPrefix):])
		if err != nil {
			return "", false
		}
		return status, true
	}
	return "", false
}

// StatusText is the status name for display, falling back to the lifecycle state
func (i *Issue) StatusText() string {
	for _, label := range i.Labels {
		if strings.HasPrefix(strings.ToLower(label), StatusLabelPrefix) {
			return label[len(StatusLabelPrefix):]
		}
	}
	return i.State.String()
}

// Due returns the due date found in the body or labels; zero when unset
func (i *Issue) Due() time.Time {
	return ParseDue(i.Body, i.Labels)
}

// StatusLabel builds the label name for a status
func StatusLabel(status Status) string {
	return StatusLabelPrefix + status.String()
}

// IsStatusLabel reports whether a label uses the status prefix
func IsStatusLabel(label string) bool {
	return strings.HasPrefix(strings.ToLower(label), StatusLabelPrefix)
}
