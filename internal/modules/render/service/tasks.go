package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// TaskListCap bounds the entries of a task list
const TaskListCap = 20

// NoTasksText is rendered when no issue matches a task list query
const NoTasksText = "No matching tasks."

// DefaultTaskStatuses is used when a task list names no status
var DefaultTaskStatuses = []domain.Status{domain.StatusTodo, domain.StatusInProgress}

// TaskQuery selects issues for a task list. Empty Statuses means todo and in progress.
type TaskQuery struct {
	Statuses []domain.Status
	Assignee string
}

// CollectTasks fetches the issues matching the channel's first group and the query
func (r *Renderer) CollectTasks(ctx context.Context, channelID string, query TaskQuery) ([]Entry, error) {
	groups, err := r.groups.ListGroups(ctx, channelID)
	if err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to list groups").Wrap(err)
	}
	var filters []string
	if len(groups) > 0 {
		filters = groups[0].LabelFilters
	}

	issues, err := r.source.Fetch(ctx, filters)
	if err != nil {
		return nil, oops.With("channel_id", channelID, "filters", filters).Wrap(err)
	}

	statuses := query.Statuses
	if len(statuses) == 0 {
		statuses = DefaultTaskStatuses
	}
	assignee := strings.TrimPrefix(query.Assignee, "@")

	picked := lo.Filter(issues, func(issue *domain.Issue, _ int) bool {
		if assignee != "" && !strings.EqualFold(issue.Assignee, assignee) {
			return false
		}
		return lo.SomeBy(statuses, func(status domain.Status) bool {
			if !issue.HasLabel(domain.StatusLabel(status)) {
				return false
			}
			// done matches closed issues too
			return status == domain.StatusDone || issue.IsOpen()
		})
	})

	today := domain.Today(r.opts.Now(), r.opts.Location)
	return rank(picked, today), nil
}

// RenderTaskList renders up to TaskListCap matching issues, one entry per issue
func (r *Renderer) RenderTaskList(ctx context.Context, channelID string, query TaskQuery) (string, error) {
	entries, err := r.CollectTasks(ctx, channelID, query)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return NoTasksText, nil
	}

	now := r.opts.Now()
	top := capEntries(entries, TaskListCap)
	lines := []string{fmt.Sprintf("**tasks** (%d of %d)", len(top), len(entries))}
	for _, e := range top {
		lines = append(lines, fmt.Sprintf("- `#%d` %s%s | status: %s | assignee: %s | due: %s | updated: %s\n  %s",
			e.Issue.Number, ShortenTitle(e.Issue.Title), e.Urgency.Marker(),
			e.Issue.StatusText(), assigneeText(e.Issue), dueText(e.Due),
			RelativeTime(e.Issue.UpdatedAt, now), e.Issue.URL))
	}
	return r.truncate(strings.Join(lines, "\n")), nil
}
