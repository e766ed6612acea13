package domain

import (
	"strings"
	"unicode/utf8"

	issueDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
)

const (
	MinInterval     = 1
	MaxInterval     = 180
	MaxGroupNameLen = 50
	DefaultInterval = 5
)

// Bundle is a channel's self-updating summary message and its schedule
type Bundle struct {
	ChannelID       string `json:"channel_id"`
	MessageID       int    `json:"message_id"`
	IntervalMinutes int    `json:"interval_minutes"`
	Pin             bool   `json:"pin"`
	Suppress        bool   `json:"suppress"`
}

// Group is a named, label-filtered section of a bundle
type Group struct {
	ChannelID    string   `json:"channel_id"`
	Name         string   `json:"name"`
	LabelFilters []string `json:"label_filters"`
}

// Preset is a reusable filter set for creating groups
type Preset struct {
	Name            string   `json:"name"`
	LabelFilters    []string `json:"label_filters"`
	IntervalMinutes int      `json:"interval_minutes"`
}

// ValidateInterval checks the refresh interval range
func ValidateInterval(minutes int) error {
	if minutes < MinInterval || minutes > MaxInterval {
		return errors.Validation(errors.ErrInvalidInterval, "interval", minutes)
	}
	return nil
}

// NormalizeGroupName trims the name and checks its length
func NormalizeGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxGroupNameLen {
		return "", errors.Validation(errors.ErrInvalidGroupName, "group", name)
	}
	return name, nil
}

var labelShortcuts = map[string]string{
	"todo":        "status:todo",
	"doing":       "status:in_progress",
	"in_progress": "status:in_progress",
	"done":        "status:done",
	"#bug":        "type:bug",
	"#task":       "type:task",
	"#feature":    "type:feature",
}

// Shortcuts returns the label shortcut table, keyed by shortcut
func Shortcuts() map[string]string {
	return lo.Assign(labelShortcuts)
}

// NormalizeLabels turns free text like "todo, #bug area:ui" into label names.
// Separators are spaces, commas and semicolons; shortcuts are expanded and
// duplicates dropped, keeping the first occurrence.
func NormalizeLabels(raw string) ([]string, error) {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	labels := lo.Map(tokens, func(token string, _ int) string {
		if expanded, ok := labelShortcuts[strings.ToLower(token)]; ok {
			return expanded
		}
		return token
	})
	return ValidateLabels(lo.Uniq(labels))
}

// ValidateLabels rejects status labels outside the known workflow states
func ValidateLabels(labels []string) ([]string, error) {
	for _, label := range labels {
		if !issueDomain.IsStatusLabel(label) {
			continue
		}
		if _, err := issueDomain.ParseStatus(label[len(issueDomain.StatusLabelPrefix):]); err != nil {
			return nil, errors.Validation(errors.ErrInvalidStatusLabel,
				"label", label, "allowed", issueDomain.StatusNames())
		}
	}
	if labels == nil {
		return []string{}, nil
	}
	return labels, nil
}
