package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const (
	// SummaryCap bounds the issues shown per status in a summary
	SummaryCap = 5
	// SearchCap bounds the issues shown for a search
	SearchCap = 10

	// NoSearchResultsText is rendered when a search matches nothing
	NoSearchResultsText = "No matching issues."
)

// StatusSummary splits open issues by workflow status, most recently updated first
type StatusSummary struct {
	Todo       []*domain.Issue
	InProgress []*domain.Issue
	Done       []*domain.Issue
	Others     []*domain.Issue
}

// Total is the number of open issues in the summary
func (s *StatusSummary) Total() int {
	return len(s.Todo) + len(s.InProgress) + len(s.Done) + len(s.Others)
}

// CollectStatusSummary fetches every open issue and buckets it by the first
// status label found, checked in todo, in progress, done order
func (r *Renderer) CollectStatusSummary(ctx context.Context) (*StatusSummary, error) {
	issues, err := r.source.Fetch(ctx, nil)
	if err != nil {
		return nil, oops.With("context", "failed to fetch issues for summary").Wrap(err)
	}

	summary := &StatusSummary{}
	for _, issue := range issues {
		if !issue.IsOpen() {
			continue
		}
		switch {
		case issue.HasLabel(domain.StatusLabel(domain.StatusTodo)):
			summary.Todo = append(summary.Todo, issue)
		case issue.HasLabel(domain.StatusLabel(domain.StatusInProgress)):
			summary.InProgress = append(summary.InProgress, issue)
		case issue.HasLabel(domain.StatusLabel(domain.StatusDone)):
			summary.Done = append(summary.Done, issue)
		default:
			summary.Others = append(summary.Others, issue)
		}
	}
	for _, bucket := range [][]*domain.Issue{summary.Todo, summary.InProgress, summary.Done, summary.Others} {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].UpdatedAt.After(bucket[j].UpdatedAt) })
	}
	return summary, nil
}

// RenderStatusSummary renders the open issue count and the top issues of each status
func (r *Renderer) RenderStatusSummary(ctx context.Context) (string, error) {
	summary, err := r.CollectStatusSummary(ctx)
	if err != nil {
		return "", err
	}

	now := r.opts.Now()
	today := domain.Today(now, r.opts.Location)
	parts := []string{fmt.Sprintf("📊 **open issues**: %d", summary.Total())}
	buckets := []struct {
		title  string
		issues []*domain.Issue
	}{
		{"not started (status:todo)", summary.Todo},
		{"in progress (status:in_progress)", summary.InProgress},
		{"done (status:done)", summary.Done},
		{"unclassified", summary.Others},
	}
	for _, bucket := range buckets {
		parts = append(parts, fmt.Sprintf("**%s** (%d)", bucket.title, len(bucket.issues)))
		if len(bucket.issues) == 0 {
			parts = append(parts, "> none")
			continue
		}
		for _, issue := range lo.Slice(bucket.issues, 0, SummaryCap) {
			parts = append(parts, r.formatBlock(newEntry(issue, today), now))
		}
		if rest := len(bucket.issues) - SummaryCap; rest > 0 {
			parts = append(parts, fmt.Sprintf("> …and %d more", rest))
		}
	}
	return r.truncate(strings.Join(parts, "\n\n")), nil
}

// RenderSearch renders the most recently updated issues matching labels and keyword
func (r *Renderer) RenderSearch(ctx context.Context, labels []string, keyword string) (string, error) {
	if r.opts.Searcher == nil {
		return "", oops.Errorf("issue search is not available for this tracker")
	}
	result, err := r.opts.Searcher.Search(ctx, labels, keyword, SearchCap)
	if err != nil {
		return "", err
	}
	if len(result.Issues) == 0 {
		return NoSearchResultsText, nil
	}

	now := r.opts.Now()
	today := domain.Today(now, r.opts.Location)
	parts := []string{fmt.Sprintf("🔎 `%s`\nmatches: %d", result.Query, result.Total)}
	for _, issue := range result.Issues {
		parts = append(parts, r.formatBlock(newEntry(issue, today), now))
	}
	return r.truncate(strings.Join(parts, "\n\n")), nil
}
