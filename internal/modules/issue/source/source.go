package source

import (
	"context"
	"strings"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
)

// FetchCeiling bounds how many issues are scanned per lifecycle state
const FetchCeiling = 200

// Source fetches tracker issues. Fetch returns open and closed issues that
// carry every label in filters.
type Source interface {
	Fetch(ctx context.Context, filters []string) ([]*domain.Issue, error)
	ListLabels(ctx context.Context) ([]string, error)
}

// Searcher runs tracker searches by label and keyword
type Searcher interface {
	Search(ctx context.Context, labels []string, keyword string, limit int) (*SearchResult, error)
}

// SearchResult holds the most recently updated matches and the total hit count
type SearchResult struct {
	Query  string
	Issues []*domain.Issue
	Total  int
}

// SearchQuery builds a tracker search query. Labels and keywords containing
// spaces are quoted.
func SearchQuery(repo Repository, labels []string, keyword string) string {
	parts := []string{"repo:" + repo.FullName(), "is:issue"}
	for _, label := range labels {
		parts = append(parts, "label:"+quote(label))
	}
	if kw := strings.TrimSpace(keyword); kw != "" {
		if !strings.HasPrefix(kw, `"`) || !strings.HasSuffix(kw, `"`) {
			kw = quote(kw)
		}
		parts = append(parts, kw)
	}
	return strings.Join(parts, " ")
}

func quote(term string) string {
	if strings.Contains(term, " ") {
		return `"` + term + `"`
	}
	return term
}

// Repository identifies the tracker repository issues are read from
type Repository struct {
	Owner string
	Name  string
}

// FullName returns "owner/name"
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}
