package source

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

const (
	pageSize = 100

	// DefaultSearchLimit is the number of search matches returned when none is given
	DefaultSearchLimit = 10
)

// GitHub implements Source over the GitHub REST API
type GitHub struct {
	client *github.Client
	repo   Repository

	labelsMu sync.Mutex
	labels   []string
}

// NewGitHub creates a GitHub source. An empty token uses unauthenticated
// access; a non-empty baseURL targets GitHub Enterprise.
func NewGitHub(token, baseURL string, repo Repository) (*GitHub, error) {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, oops.With("github_api_url", baseURL, "context", "invalid github api url").Wrap(err)
		}
		client.BaseURL = u
	}
	return &GitHub{client: client, repo: repo}, nil
}

// Repository returns the repository this source reads
func (g *GitHub) Repository() Repository {
	return g.repo
}

func (g *GitHub) Fetch(ctx context.Context, filters []string) ([]*domain.Issue, error) {
	var issues []*domain.Issue
	for _, state := range []domain.State{domain.StateOpen, domain.StateClosed} {
		fetched, err := g.fetchState(ctx, state, filters)
		if err != nil {
			return nil, err
		}
		issues = append(issues, fetched...)
	}

	return lo.Filter(issues, func(issue *domain.Issue, _ int) bool {
		return issue.Matches(filters)
	}), nil
}

func (g *GitHub) fetchState(ctx context.Context, state domain.State, filters []string) ([]*domain.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       state.String(),
		Sort:        "updated",
		Direction:   "desc",
		Labels:      filters,
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var issues []*domain.Issue
	scanned := 0
	for scanned < FetchCeiling {
		page, resp, err := g.client.Issues.ListByRepo(ctx, g.repo.Owner, g.repo.Name, opts)
		if err != nil {
			return nil, errors.External("github", err,
				"repo", g.repo.FullName(), "state", state, "page", opts.Page)
		}

		for _, item := range page {
			if scanned >= FetchCeiling {
				break
			}
			scanned++
			if item.IsPullRequest() {
				continue
			}
			issues = append(issues, toIssue(item))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return issues, nil
}

// Search returns the most recently updated issues matching labels and
// keyword, with the total number of matches
func (g *GitHub) Search(ctx context.Context, labels []string, keyword string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query := SearchQuery(g.repo, labels, keyword)
	found, _, err := g.client.Search.Issues(ctx, query, &github.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: min(limit, pageSize)},
	})
	if err != nil {
		return nil, errors.External("github", err, "repo", g.repo.FullName(), "query", query, "context", "failed to search issues")
	}

	issues := lo.FilterMap(found.Issues, func(item *github.Issue, _ int) (*domain.Issue, bool) {
		if item.IsPullRequest() {
			return nil, false
		}
		return toIssue(item), true
	})
	if len(issues) > limit {
		issues = issues[:limit]
	}
	return &SearchResult{Query: query, Issues: issues, Total: found.GetTotal()}, nil
}

// ListLabels returns the repository's label names, sorted case-insensitively.
// The first successful result is kept for the process lifetime.
func (g *GitHub) ListLabels(ctx context.Context) ([]string, error) {
	g.labelsMu.Lock()
	defer g.labelsMu.Unlock()

	if g.labels != nil {
		return g.labels, nil
	}
	labels, err := g.fetchLabels(ctx)
	if err != nil {
		return nil, err
	}
	g.labels = labels
	return labels, nil
}

func (g *GitHub) fetchLabels(ctx context.Context) ([]string, error) {
	opts := &github.ListOptions{PerPage: pageSize}
	var names []string
	for {
		page, resp, err := g.client.Issues.ListLabels(ctx, g.repo.Owner, g.repo.Name, opts)
		if err != nil {
			return nil, errors.External("github", err, "repo", g.repo.FullName(), "context", "failed to list labels")
		}
		names = append(names, lo.Map(page, func(label *github.Label, _ int) string {
			return label.GetName()
		})...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}

func toIssue(item *github.Issue) *domain.Issue {
	issue := &domain.Issue{
		Number: item.GetNumber(),
		Title:  item.GetTitle(),
		Body:   item.GetBody(),
		State:  domain.StateOpen,
		Labels: lo.Map(item.Labels, func(label *github.Label, _ int) string {
			return label.GetName()
		}),
		URL:       item.GetHTMLURL(),
		UpdatedAt: item.GetUpdatedAt().Time,
	}
	if item.GetState() == string(domain.StateClosed) {
		issue.State = domain.StateClosed
	}
	if item.Assignee != nil {
		issue.Assignee = item.Assignee.GetLogin()
	}
	return issue
}
