package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/repository"
	messageDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/message/domain"
	refreshDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// Renderer produces bundle text for a new message
type Renderer interface {
	RenderBundle(ctx context.Context, channelID string) (string, error)
}

// Messages converges bundle messages on the chat platform
type Messages interface {
	Converge(ctx context.Context, desired messageDomain.Desired) (*messageDomain.Result, error)
	ApplyState(ctx context.Context, desired messageDomain.Desired) error
}

// LabelLister lists the labels known to the tracker
type LabelLister interface {
	ListLabels(ctx context.Context) ([]string, error)
}

// BindOptions configures a new bundle message
type BindOptions struct {
	Interval int
	Pin      bool
	Suppress bool
}

// BundleEdit is a partial bundle update; nil fields are left unchanged
type BundleEdit struct {
	Interval *int
	Pin      *bool
	Suppress *bool
}

// IsEmpty reports whether the edit changes nothing
func (e BundleEdit) IsEmpty() bool {
	return e.Interval == nil && e.Pin == nil && e.Suppress == nil
}

// Description is a channel's bundle configuration
type Description struct {
	Bundle      *domain.Bundle
	Groups      []*domain.Group
	LastRefresh int64
}

// Service implements the bundle management commands. Writes hold the
// channel's refresh guard and every successful one makes the channel due
// for an immediate refresh.
type Service struct {
	store           repository.Repository
	renderer        Renderer
	messages        Messages
	state           *refreshDomain.State
	labels          LabelLister
	defaultInterval int
}

// New creates a new bundle service
func New(store repository.Repository, renderer Renderer, messages Messages, state *refreshDomain.State, labels LabelLister, defaultInterval int) *Service {
	if domain.ValidateInterval(defaultInterval) != nil {
		defaultInterval = domain.DefaultInterval
	}
	return &Service{
		store:           store,
		renderer:        renderer,
		messages:        messages,
		state:           state,
		labels:          labels,
		defaultInterval: defaultInterval,
	}
}

// DefaultInterval is the interval used when a command names none
func (s *Service) DefaultInterval() int {
	return s.defaultInterval
}

// Bind posts a new bundle message in the channel and stores it
func (s *Service) Bind(ctx context.Context, channelID string, opts BindOptions) (*domain.Bundle, error) {
	if opts.Interval == 0 {
		opts.Interval = s.defaultInterval
	}
	if err := domain.ValidateInterval(opts.Interval); err != nil {
		return nil, err
	}

	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	bundle := &domain.Bundle{
		ChannelID:       channelID,
		IntervalMinutes: opts.Interval,
		Pin:             opts.Pin,
		Suppress:        opts.Suppress,
	}
	if err := s.post(ctx, bundle); err != nil {
		return nil, err
	}
	s.state.Reset(channelID)
	return bundle, nil
}

// AddGroup adds or replaces a group, creating the bundle with defaults when
// the channel has none
func (s *Service) AddGroup(ctx context.Context, channelID, name, rawLabels string) (*domain.Group, error) {
	name, err := domain.NormalizeGroupName(name)
	if err != nil {
		return nil, err
	}
	filters, err := domain.NormalizeLabels(rawLabels)
	if err != nil {
		return nil, err
	}
	return s.addGroup(ctx, channelID, name, filters)
}

// AddGroupFromPreset adds a group using a saved preset's filters
func (s *Service) AddGroupFromPreset(ctx context.Context, channelID, presetName, groupName string) (*domain.Group, error) {
	name, err := domain.NormalizeGroupName(groupName)
	if err != nil {
		return nil, err
	}
	preset, err := s.store.GetPreset(ctx, strings.TrimSpace(presetName))
	if err != nil {
		return nil, err
	}
	return s.addGroup(ctx, channelID, name, preset.LabelFilters)
}

func (s *Service) addGroup(ctx context.Context, channelID, name string, filters []string) (*domain.Group, error) {
	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	if err := s.ensureBundle(ctx, channelID); err != nil {
		return nil, err
	}

	group := &domain.Group{ChannelID: channelID, Name: name, LabelFilters: filters}
	if err := s.store.UpsertGroup(ctx, group); err != nil {
		return nil, err
	}
	s.state.Reset(channelID)
	slog.Info("Group saved", "channel_id", channelID, "group", name, "filters", filters)
	return group, nil
}

// RemoveGroup deletes a group, reporting whether it existed
func (s *Service) RemoveGroup(ctx context.Context, channelID, name string) (bool, error) {
	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	removed, err := s.store.DeleteGroup(ctx, channelID, strings.TrimSpace(name))
	if err != nil {
		return false, err
	}
	if removed {
		s.state.Reset(channelID)
	}
	return removed, nil
}

// RenameGroup renames a group within its channel
func (s *Service) RenameGroup(ctx context.Context, channelID, oldName, newName string) error {
	newName, err := domain.NormalizeGroupName(newName)
	if err != nil {
		return err
	}

	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	if err := s.store.RenameGroup(ctx, channelID, strings.TrimSpace(oldName), newName); err != nil {
		return err
	}
	s.state.Reset(channelID)
	return nil
}

// SetGroupLabels replaces the filters of an existing group
func (s *Service) SetGroupLabels(ctx context.Context, channelID, name, rawLabels string) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	filters, err := domain.NormalizeLabels(rawLabels)
	if err != nil {
		return nil, err
	}

	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	groups, err := s.store.ListGroups(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !lo.ContainsBy(groups, func(g *domain.Group) bool { return g.Name == name }) {
		return nil, errors.NotFound(errors.ErrGroupNotFound, "channel_id", channelID, "group", name)
	}

	group := &domain.Group{ChannelID: channelID, Name: name, LabelFilters: filters}
	if err := s.store.UpsertGroup(ctx, group); err != nil {
		return nil, err
	}
	s.state.Reset(channelID)
	return group, nil
}

// EditBundle applies a partial update and converges pin and link preview
// state on the live message right away
func (s *Service) EditBundle(ctx context.Context, channelID string, edit BundleEdit) (*domain.Bundle, error) {
	if edit.Interval != nil {
		if err := domain.ValidateInterval(*edit.Interval); err != nil {
			return nil, err
		}
	}

	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	bundle, err := s.store.GetBundle(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if edit.IsEmpty() {
		return bundle, nil
	}

	if edit.Interval != nil {
		bundle.IntervalMinutes = *edit.Interval
	}
	if edit.Pin != nil {
		bundle.Pin = *edit.Pin
	}
	if edit.Suppress != nil {
		bundle.Suppress = *edit.Suppress
	}
	if err := s.store.UpsertBundle(ctx, bundle); err != nil {
		return nil, err
	}
	s.state.Reset(channelID)

	// the next refresh converges again, so a failure here is only logged
	if err := s.messages.ApplyState(ctx, desiredState(bundle)); err != nil {
		slog.Warn("Failed to apply bundle settings", "channel_id", channelID, "message_id", bundle.MessageID, "error", err)
	}
	return bundle, nil
}

// SavePreset stores a reusable filter set
func (s *Service) SavePreset(ctx context.Context, name string, interval int, rawLabels string) (*domain.Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Validation(errors.ErrInvalidGroupName, "preset", name)
	}
	if interval == 0 {
		interval = s.defaultInterval
	}
	if err := domain.ValidateInterval(interval); err != nil {
		return nil, err
	}
	filters, err := domain.NormalizeLabels(rawLabels)
	if err != nil {
		return nil, err
	}

	preset := &domain.Preset{Name: name, LabelFilters: filters, IntervalMinutes: interval}
	if err := s.store.SavePreset(ctx, preset); err != nil {
		return nil, err
	}
	return preset, nil
}

// ListPresets lists presets whose name starts with prefix
func (s *Service) ListPresets(ctx context.Context, prefix string) ([]*domain.Preset, error) {
	return s.store.ListPresets(ctx, strings.TrimSpace(prefix))
}

// Describe returns the bundle and groups of a channel. The bundle is nil
// when only groups exist; ConfigNotFound is returned when neither does.
func (s *Service) Describe(ctx context.Context, channelID string) (*Description, error) {
	bundle, err := s.store.GetBundle(ctx, channelID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	groups, gerr := s.store.ListGroups(ctx, channelID)
	if gerr != nil {
		return nil, gerr
	}
	if bundle == nil && len(groups) == 0 {
		return nil, err
	}
	return &Description{
		Bundle:      bundle,
		Groups:      groups,
		LastRefresh: s.state.LastRefresh(channelID),
	}, nil
}

// ListBundles lists every bound channel
func (s *Service) ListBundles(ctx context.Context) ([]*domain.Bundle, error) {
	return s.store.ListBundles(ctx)
}

// UnknownLabels returns the filters the tracker does not know. Lookup
// failures yield nil so replies are never blocked on them.
func (s *Service) UnknownLabels(ctx context.Context, filters []string) []string {
	if s.labels == nil || len(filters) == 0 {
		return nil
	}
	known, err := s.labels.ListLabels(ctx)
	if err != nil {
		slog.Debug("Failed to list tracker labels", "error", err)
		return nil
	}
	index := lo.SliceToMap(known, func(label string) (string, struct{}) {
		return strings.ToLower(label), struct{}{}
	})
	return lo.Filter(filters, func(f string, _ int) bool {
		_, ok := index[strings.ToLower(f)]
		return !ok
	})
}

func (s *Service) ensureBundle(ctx context.Context, channelID string) error {
	_, err := s.store.GetBundle(ctx, channelID)
	if err == nil || !errors.IsNotFound(err) {
		return err
	}

	bundle := &domain.Bundle{
		ChannelID:       channelID,
		IntervalMinutes: s.defaultInterval,
		Pin:             true,
		Suppress:        true,
	}
	return s.post(ctx, bundle)
}

// post sends the bundle's first message and stores the bundle with its id
func (s *Service) post(ctx context.Context, bundle *domain.Bundle) error {
	content, err := s.renderer.RenderBundle(ctx, bundle.ChannelID)
	if err != nil {
		return err
	}

	desired := desiredState(bundle)
	desired.Content = content
	desired.MessageID = 0
	result, cerr := s.messages.Converge(ctx, desired)
	if result != nil {
		bundle.MessageID = result.MessageID
	}
	if result == nil && cerr != nil {
		return cerr
	}

	if err := s.store.UpsertBundle(ctx, bundle); err != nil {
		return oops.With("channel_id", bundle.ChannelID, "message_id", bundle.MessageID, "context", "failed to store bundle").Wrap(err)
	}
	return cerr
}

func desiredState(bundle *domain.Bundle) messageDomain.Desired {
	return messageDomain.Desired{
		ChannelID: bundle.ChannelID,
		MessageID: bundle.MessageID,
		Pin:       bundle.Pin,
		Suppress:  bundle.Suppress,
	}
}
