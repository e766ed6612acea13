package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"time"

	"github.com/gorilla/feeds"
	bundleRepo "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/repository"
	renderService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/render/service"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// SectionCollector gathers a group's ranked issues
type SectionCollector interface {
	CollectSection(ctx context.Context, name string, filters []string) (*renderService.Section, error)
}

// Service handles RSS feed generation
type Service struct {
	store    bundleRepo.Repository
	sections SectionCollector
}

// New creates a new feed service
func New(store bundleRepo.Repository, sections SectionCollector) *Service {
	return &Service{
		store:    store,
		sections: sections,
	}
}

// GenerateFeed builds an RSS feed of the open issues in each of the
// channel's groups, most urgent first within a group
func (s *Service) GenerateFeed(ctx context.Context, channelID, baseURL string) (*feeds.Feed, error) {
	groups, err := s.store.ListGroups(ctx, channelID)
	if err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to list groups").Wrap(err)
	}
	if len(groups) == 0 {
		return nil, errors.NotFound(errors.ErrGroupNotFound, "channel_id", channelID)
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Tracker bundle %s", channelID),
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/feed/%s", baseURL, channelID)},
		Description: fmt.Sprintf("Open tracker issues for channel %s", channelID),
	}

	for _, group := range groups {
		section, err := s.sections.CollectSection(ctx, group.Name, group.LabelFilters)
		if err != nil {
			return nil, oops.With("channel_id", channelID, "group", group.Name, "context", "failed to collect section").Wrap(err)
		}
		if section.RenderedAt.After(feed.Updated) {
			feed.Updated = section.RenderedAt
		}
		feed.Items = append(feed.Items, lo.Map(sectionEntries(section), func(e renderService.Entry, _ int) *feeds.Item {
			return entryToItem(channelID, group.Name, e, section.RenderedAt)
		})...)
	}
	return feed, nil
}

// sectionEntries merges both subsections into one urgency ranking; an
// issue listed under both statuses appears once
func sectionEntries(section *renderService.Section) []renderService.Entry {
	entries := lo.UniqBy(append(append([]renderService.Entry{}, section.InProgress...), section.Todo...), func(e renderService.Entry) int {
		return e.Issue.Number
	})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Urgency != entries[j].Urgency {
			return entries[i].Urgency < entries[j].Urgency
		}
		return entries[i].Issue.UpdatedAt.Before(entries[j].Issue.UpdatedAt)
	})
	return entries
}

func entryToItem(channelID, groupName string, e renderService.Entry, now time.Time) *feeds.Item {
	issue := e.Issue
	assignee := "unassigned"
	if issue.Assignee != "" {
		assignee = "@" + issue.Assignee
	}
	due := "unset"
	if !e.Due.IsZero() {
		due = e.Due.Format("2006-01-02")
	}

	description := fmt.Sprintf("status: %s | assignee: %s | due: %s | updated: %s",
		issue.StatusText(), assignee, due, renderService.RelativeTime(issue.UpdatedAt, now))

	return &feeds.Item{
		Title:       fmt.Sprintf("[%s] #%d %s%s", groupName, issue.Number, renderService.ShortenTitle(issue.Title), e.Urgency.Marker()),
		Link:        &feeds.Link{Href: issue.URL},
		Description: description,
		Content:     fmt.Sprintf("<p>%s</p>", html.EscapeString(description)),
		Author:      &feeds.Author{Name: assignee},
		Created:     issue.UpdatedAt,
		Updated:     issue.UpdatedAt,
		Id:          fmt.Sprintf("%s-%s-%d", channelID, groupName, issue.Number),
	}
}
