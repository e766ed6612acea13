package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueMatchesIsAND(t *testing.T) {
	issue := &Issue{Labels: []string{"A", "B", "C"}}

	assert.True(t, issue.Matches([]string{"A", "B"}))
	assert.True(t, issue.Matches(nil))
	assert.False(t, issue.Matches([]string{"A", "D"}))
	assert.True(t, issue.Matches([]string{"a", "b"}), "filter match ignores case")
	assert.False(t, issue.Matches([]string{"a", "d"}))
}

func TestIssueStatus(t *testing.T) {
	issue := &Issue{State: StateOpen, Labels: []string{"type:bug", "Status:In_Progress"}}
	status, ok := issue.Status()
	assert.True(t, ok)
	assert.Equal(t, StatusInProgress, status)
	assert.True(t, issue.HasLabel("status:in_progress"))

	unknown := &Issue{State: StateClosed, Labels: []string{"status:blocked"}}
	_, ok = unknown.Status()
	assert.False(t, ok)
	assert.Equal(t, "blocked", unknown.StatusText())

	bare := &Issue{State: StateClosed}
	assert.Equal(t, "closed", bare.StatusText())
}

func TestParseUrgencyRoundTrip(t *testing.T) {
	for _, name := range UrgencyNames() {
		u, err := ParseUrgency(name)
		assert.NoError(t, err)
		assert.Equal(t, name, u.String())
	}
	_, err := ParseUrgency("later")
	assert.ErrorIs(t, err, ErrInvalidUrgency)
}
