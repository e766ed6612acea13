package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/feeds"
	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	bundleRepo "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/repository"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	renderService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/render/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var renderedAt = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type stubSections struct {
	sections map[string]*renderService.Section
	err      error
}

func (s stubSections) CollectSection(_ context.Context, name string, _ []string) (*renderService.Section, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sections[name], nil
}

func entry(number int, urgency domain.Urgency, updated time.Time) renderService.Entry {
	return renderService.Entry{
		Issue: &domain.Issue{
			Number:    number,
			Title:     fmt.Sprintf("issue %d", number),
			State:     domain.StateOpen,
			Labels:    []string{"status:todo"},
			URL:       fmt.Sprintf("https://github.com/acme/tracker/issues/%d", number),
			UpdatedAt: updated,
		},
		Urgency: urgency,
	}
}

func newStore(t *testing.T) bundleRepo.Repository {
	t.Helper()
	store, err := bundleRepo.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestGenerateFeed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertGroup(ctx, &bundleDomain.Group{ChannelID: "c", Name: "Bugs", LabelFilters: []string{"type:bug"}}))

	shared := entry(3, domain.UrgencyDueSoon, renderedAt.Add(-time.Hour))
	sections := stubSections{sections: map[string]*renderService.Section{
		"Bugs": {
			Name:       "Bugs",
			InProgress: []renderService.Entry{entry(1, domain.UrgencyNone, renderedAt.Add(-48*time.Hour)), shared},
			Todo:       []renderService.Entry{entry(2, domain.UrgencyOverdue, renderedAt.Add(-2*time.Hour)), shared},
			RenderedAt: renderedAt,
		},
	}}

	feed, err := New(store, sections).GenerateFeed(ctx, "c", "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/feed/c", feed.Link.Href)
	assert.Equal(t, renderedAt, feed.Updated)

	ids := lo.Map(feed.Items, func(item *feeds.Item, _ int) string { return item.Id })
	assert.Equal(t, []string{"c-Bugs-2", "c-Bugs-3", "c-Bugs-1"}, ids)
	assert.Equal(t, "[Bugs] #2 issue 2 [overdue]", feed.Items[0].Title)
	assert.Contains(t, feed.Items[0].Description, "assignee: unassigned | due: unset | updated: 2 hours ago")

	rss, err := feed.ToRss()
	require.NoError(t, err)
	assert.Contains(t, rss, "<title>[Bugs] #2 issue 2 [overdue]</title>")
}

func TestGenerateFeedErrors(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := New(store, stubSections{}).GenerateFeed(ctx, "c", "")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, store.UpsertGroup(ctx, &bundleDomain.Group{ChannelID: "c", Name: "Bugs", LabelFilters: []string{}}))
	_, err = New(store, stubSections{err: fmt.Errorf("tracker down")}).GenerateFeed(ctx, "c", "")
	assert.ErrorContains(t, err, "tracker down")
}
