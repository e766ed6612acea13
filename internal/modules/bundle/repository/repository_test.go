package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	open func(dir string) (Repository, error)
	repo Repository
	ctx  context.Context
}

func (s *RepositorySuite) SetupTest() {
	repo, err := s.open(s.T().TempDir())
	s.Require().NoError(err)
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositorySuite) TearDownTest() {
	s.NoError(s.repo.Close())
}

func TestSQLiteStorage(t *testing.T) {
	suite.Run(t, &RepositorySuite{open: NewSQLiteStorage})
}

func TestFileStorage(t *testing.T) {
	suite.Run(t, &RepositorySuite{open: NewFileStorage})
}

func (s *RepositorySuite) TestBundleUpsertAndGet() {
	_, err := s.repo.GetBundle(s.ctx, "-1001")
	s.True(errors.Is(err, errors.ErrBundleNotFound))
	s.True(errors.IsNotFound(err))

	bundle := &domain.Bundle{ChannelID: "-1001", MessageID: 42, IntervalMinutes: 5, Pin: true, Suppress: true}
	s.Require().NoError(s.repo.UpsertBundle(s.ctx, bundle))

	got, err := s.repo.GetBundle(s.ctx, "-1001")
	s.Require().NoError(err)
	s.Equal(bundle, got)

	bundle.MessageID = 43
	bundle.Pin = false
	s.Require().NoError(s.repo.UpsertBundle(s.ctx, bundle))

	got, err = s.repo.GetBundle(s.ctx, "-1001")
	s.Require().NoError(err)
	s.Equal(43, got.MessageID)
	s.False(got.Pin)
	s.True(got.Suppress)
}

func (s *RepositorySuite) TestSwapMessageID() {
	_, err := s.repo.SwapMessageID(s.ctx, "-1001", 0, 1)
	s.True(errors.IsNotFound(err))

	s.Require().NoError(s.repo.UpsertBundle(s.ctx, &domain.Bundle{ChannelID: "-1001", MessageID: 42, IntervalMinutes: 5, Pin: false, Suppress: true}))

	swapped, err := s.repo.SwapMessageID(s.ctx, "-1001", 41, 50)
	s.Require().NoError(err)
	s.False(swapped, "a stale id leaves the bundle alone")

	swapped, err = s.repo.SwapMessageID(s.ctx, "-1001", 42, 50)
	s.Require().NoError(err)
	s.True(swapped)

	got, err := s.repo.GetBundle(s.ctx, "-1001")
	s.Require().NoError(err)
	s.Equal(&domain.Bundle{ChannelID: "-1001", MessageID: 50, IntervalMinutes: 5, Pin: false, Suppress: true}, got)
}

func (s *RepositorySuite) TestListBundles() {
	for _, id := range []string{"-1003", "-1001", "@team"} {
		s.Require().NoError(s.repo.UpsertBundle(s.ctx, &domain.Bundle{ChannelID: id, IntervalMinutes: 10}))
	}

	bundles, err := s.repo.ListBundles(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(bundles, 3)
	s.Equal("-1001", bundles[0].ChannelID)
	s.Equal("-1003", bundles[1].ChannelID)
	s.Equal("@team", bundles[2].ChannelID)
}

func (s *RepositorySuite) TestGroupsSortedAndScopedByChannel() {
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Zeta", LabelFilters: []string{"type:bug"}}))
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Alpha"}))
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "b", Name: "Other"}))

	groups, err := s.repo.ListGroups(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().Len(groups, 2)
	s.Equal("Alpha", groups[0].Name)
	s.Equal([]string{}, groups[0].LabelFilters)
	s.Equal("Zeta", groups[1].Name)
	s.Equal([]string{"type:bug"}, groups[1].LabelFilters)
	s.Equal("a", groups[1].ChannelID)

	empty, err := s.repo.ListGroups(s.ctx, "missing")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *RepositorySuite) TestUpsertGroupReplacesFilters() {
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Bugs", LabelFilters: []string{"type:bug"}}))
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Bugs", LabelFilters: []string{"status:todo", "type:bug"}}))

	groups, err := s.repo.ListGroups(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().Len(groups, 1)
	s.Equal([]string{"status:todo", "type:bug"}, groups[0].LabelFilters)
}

func (s *RepositorySuite) TestDeleteGroup() {
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Bugs"}))

	deleted, err := s.repo.DeleteGroup(s.ctx, "a", "Bugs")
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.repo.DeleteGroup(s.ctx, "a", "Bugs")
	s.Require().NoError(err)
	s.False(deleted)
}

func (s *RepositorySuite) TestRenameGroup() {
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Bugs", LabelFilters: []string{"type:bug"}}))
	s.Require().NoError(s.repo.UpsertGroup(s.ctx, &domain.Group{ChannelID: "a", Name: "Tasks"}))

	err := s.repo.RenameGroup(s.ctx, "a", "Bugs", "Tasks")
	s.True(errors.Is(err, errors.ErrGroupExists))
	s.True(errors.IsValidation(err))

	err = s.repo.RenameGroup(s.ctx, "a", "Missing", "New")
	s.True(errors.Is(err, errors.ErrGroupNotFound))

	s.Require().NoError(s.repo.RenameGroup(s.ctx, "a", "Bugs", "Defects"))
	groups, err := s.repo.ListGroups(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().Len(groups, 2)
	s.Equal("Defects", groups[0].Name)
	s.Equal([]string{"type:bug"}, groups[0].LabelFilters)
}

func (s *RepositorySuite) TestPresets() {
	_, err := s.repo.GetPreset(s.ctx, "triage")
	s.True(errors.Is(err, errors.ErrPresetNotFound))

	preset := &domain.Preset{Name: "triage", LabelFilters: []string{"status:todo"}, IntervalMinutes: 15}
	s.Require().NoError(s.repo.SavePreset(s.ctx, preset))

	got, err := s.repo.GetPreset(s.ctx, "triage")
	s.Require().NoError(err)
	s.Equal(preset, got)

	preset.IntervalMinutes = 30
	s.Require().NoError(s.repo.SavePreset(s.ctx, preset))
	got, err = s.repo.GetPreset(s.ctx, "triage")
	s.Require().NoError(err)
	s.Equal(30, got.IntervalMinutes)
}

func (s *RepositorySuite) TestListPresetsPrefixAndLimit() {
	for i := 0; i < 30; i++ {
		s.Require().NoError(s.repo.SavePreset(s.ctx, &domain.Preset{Name: fmt.Sprintf("team-%02d", i), IntervalMinutes: 5}))
	}
	s.Require().NoError(s.repo.SavePreset(s.ctx, &domain.Preset{Name: "other", IntervalMinutes: 5}))
	s.Require().NoError(s.repo.SavePreset(s.ctx, &domain.Preset{Name: "a_b", IntervalMinutes: 5}))
	s.Require().NoError(s.repo.SavePreset(s.ctx, &domain.Preset{Name: "axb", IntervalMinutes: 5}))

	presets, err := s.repo.ListPresets(s.ctx, "team-")
	s.Require().NoError(err)
	s.Len(presets, presetListLimit)
	s.Equal("team-00", presets[0].Name)

	all, err := s.repo.ListPresets(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, presetListLimit)

	// wildcard characters match literally
	literal, err := s.repo.ListPresets(s.ctx, "a_")
	s.Require().NoError(err)
	s.Require().Len(literal, 1)
	s.Equal("a_b", literal[0].Name)
}

func TestSQLiteStoragePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewSQLiteStorage(dir)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertBundle(ctx, &domain.Bundle{ChannelID: "c", MessageID: 7, IntervalMinutes: 3}))
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteStorage(dir)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetBundle(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 7, got.MessageID)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\d`, escapeLike(`a_b%c\d`))
}
