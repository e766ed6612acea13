package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/issue/source"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

const (
	// SectionCap bounds each subsection after sorting
	SectionCap          = 50
	// DefaultMessageLimit is Telegram's message size in UTF-16 code units
	DefaultMessageLimit = 4096
	DefaultWebURL       = "https://github.com"

	fetchConcurrency = 4

	// EmptyBundleText is rendered for a channel without groups
	EmptyBundleText = "No groups in this channel yet. Add one with `/group_add <name> [labels]`."
)

// GroupLister is the part of the bundle store the renderer reads
type GroupLister interface {
	ListGroups(ctx context.Context, channelID string) ([]*bundleDomain.Group, error)
}

// Options configures a Renderer. Zero fields get defaults.
type Options struct {
	Repository   source.Repository
	WebURL       string
	MessageLimit int
	Location     *time.Location
	Now          func() time.Time

	// Measure counts content the way the chat platform does; runes when unset
	Measure func(content string) int
	// Searcher runs searches; the source is used when it can search
	Searcher source.Searcher
}

// Entry is an issue ready for display, with its derived due date and urgency
type Entry struct {
	Issue   *domain.Issue
	Due     time.Time
	Urgency domain.Urgency
}

// Section is a group's issues split by workflow status, most urgent first
type Section struct {
	Name       string
	Filters    []string
	InProgress []Entry
	Todo       []Entry
	RenderedAt time.Time
}

// Renderer turns a channel's groups into bundle message text
type Renderer struct {
	source source.Source
	groups GroupLister
	opts   Options
}

// New creates a new renderer
func New(src source.Source, groups GroupLister, opts Options) *Renderer {
	if opts.WebURL == "" {
		opts.WebURL = DefaultWebURL
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = DefaultMessageLimit
	}
	if opts.Searcher == nil {
		opts.Searcher, _ = src.(source.Searcher)
	}
	if opts.Measure == nil {
		opts.Measure = RuneLength
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{
		source: src,
		groups: groups,
		opts:   opts,
	}
}

// MessageLimit is the size bound applied to rendered bundles
func (r *Renderer) MessageLimit() int {
	return r.opts.MessageLimit
}

// CollectSection fetches the issues of one group and ranks them
func (r *Renderer) CollectSection(ctx context.Context, name string, filters []string) (*Section, error) {
	issues, err := r.source.Fetch(ctx, filters)
	if err != nil {
		return nil, oops.With("group", name, "filters", filters).Wrap(err)
	}

	now := r.opts.Now()
	today := domain.Today(now, r.opts.Location)
	section := &Section{Name: name, Filters: filters, RenderedAt: now}

	var doing, todo []*domain.Issue
	for _, issue := range issues {
		if !issue.IsOpen() {
			continue
		}
		if issue.HasLabel(domain.StatusLabel(domain.StatusInProgress)) {
			doing = append(doing, issue)
		}
		if issue.HasLabel(domain.StatusLabel(domain.StatusTodo)) {
			todo = append(todo, issue)
		}
	}

	section.InProgress = capEntries(rank(doing, today), SectionCap)
	section.Todo = capEntries(rank(todo, today), SectionCap)
	return section, nil
}

// RenderSection renders one group as a bundle section
func (r *Renderer) RenderSection(ctx context.Context, name string, filters []string) (string, error) {
	section, err := r.CollectSection(ctx, name, filters)
	if err != nil {
		return "", err
	}
	return r.formatSection(section), nil
}

// RenderBundle renders every group of the channel in name order and bounds
// the result to the message limit
func (r *Renderer) RenderBundle(ctx context.Context, channelID string) (string, error) {
	groups, err := r.groups.ListGroups(ctx, channelID)
	if err != nil {
		return "", oops.With("channel_id", channelID, "context", "failed to list groups").Wrap(err)
	}
	if len(groups) == 0 {
		return EmptyBundleText, nil
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	sections := make([]string, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for idx, group := range groups {
		g.Go(func() error {
			text, err := r.RenderSection(gctx, group.Name, group.LabelFilters)
			if err != nil {
				return err
			}
			sections[idx] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", oops.With("channel_id", channelID).Wrap(err)
	}

	content := strings.Join(sections, "\n\n") +
		"\n\n— **last updated**: " + r.timestamp(r.opts.Now())
	return r.truncate(content), nil
}

func (r *Renderer) truncate(content string) string {
	return TruncateMeasured(content, r.opts.MessageLimit, r.opts.Measure)
}

func (r *Renderer) formatSection(section *Section) string {
	parts := []string{"**" + section.Name + "**"}
	if len(section.Filters) > 0 {
		parts = append(parts, "`labels: "+strings.Join(section.Filters, ", ")+"`")
	}
	parts = append(parts,
		r.formatSubsection("in progress", section.InProgress, section.RenderedAt),
		"",
		r.formatSubsection("not started", section.Todo, section.RenderedAt),
		"",
		"list: "+DeepLink(r.opts.WebURL, r.opts.Repository.FullName(), section.Filters),
		"section updated: "+r.timestamp(section.RenderedAt),
	)
	return strings.Join(parts, "\n")
}

func (r *Renderer) formatSubsection(label string, entries []Entry, now time.Time) string {
	header := fmt.Sprintf("**%s** (%d)", label, len(entries))
	if len(entries) == 0 {
		return header + "\n> none"
	}
	blocks := lo.Map(entries, func(e Entry, _ int) string {
		return r.formatBlock(e, now)
	})
	return header + "\n" + strings.Join(blocks, "\n\n")
}

func (r *Renderer) formatBlock(e Entry, now time.Time) string {
	marker := e.Urgency.Marker()
	updated := e.Issue.UpdatedAt.In(r.opts.Location)
	meta := strings.Join([]string{
		"assignee: " + assigneeText(e.Issue),
		"due: " + dueText(e.Due) + marker,
		fmt.Sprintf("updated: %s (%s)", updated.Format(updatedLayout), RelativeTime(e.Issue.UpdatedAt, now)),
	}, " | ")

	return strings.Join([]string{
		fmt.Sprintf("> `#%d` %s%s", e.Issue.Number, ShortenTitle(e.Issue.Title), marker),
		"> " + meta,
		"> " + e.Issue.URL,
	}, "\n")
}

func (r *Renderer) timestamp(t time.Time) string {
	return t.In(r.opts.Location).Format(timestampLayout)
}

// rank derives due dates and sorts by urgency, then least recently updated first
func rank(issues []*domain.Issue, today time.Time) []Entry {
	entries := lo.Map(issues, func(issue *domain.Issue, _ int) Entry {
		return newEntry(issue, today)
	})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Urgency != entries[j].Urgency {
			return entries[i].Urgency < entries[j].Urgency
		}
		return entries[i].Issue.UpdatedAt.Before(entries[j].Issue.UpdatedAt)
	})
	return entries
}

func newEntry(issue *domain.Issue, today time.Time) Entry {
	due := issue.Due()
	return Entry{Issue: issue, Due: due, Urgency: domain.Classify(due, today)}
}

func capEntries(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func assigneeText(issue *domain.Issue) string {
	if issue.Assignee == "" {
		return "unassigned"
	}
	return "@" + issue.Assignee
}

func dueText(due time.Time) string {
	if due.IsZero() {
		return "unset"
	}
	return due.Format(domain.DueLayout)
}
