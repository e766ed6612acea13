package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// channelRecord is the on-disk layout of bundles/<channel>.json
type channelRecord struct {
	Bundle *domain.Bundle  `json:"bundle"`
	Groups []*domain.Group `json:"groups"`
}

// FileStorage implements Repository using JSON files
type FileStorage struct {
	bundlePath  string
	presetsFile string
	mu          sync.RWMutex
}

// NewFileStorage creates a new file-based bundle repository
func NewFileStorage(basePath string) (Repository, error) {
	bundlePath := filepath.Join(basePath, "bundles")
	if err := os.MkdirAll(bundlePath, 0755); err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to create bundles directory").Wrap(err)
	}

	return &FileStorage{
		bundlePath:  bundlePath,
		presetsFile: filepath.Join(basePath, "presets.json"),
	}, nil
}

func (s *FileStorage) Close() error {
	return nil
}

func (s *FileStorage) GetBundle(_ context.Context, channelID string) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.readRecord(channelID)
	if err != nil {
		return nil, err
	}
	if record.Bundle == nil {
		return nil, errors.NotFound(errors.ErrBundleNotFound, "channel_id", channelID)
	}
	return record.Bundle, nil
}

func (s *FileStorage) ListBundles(_ context.Context) ([]*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.bundlePath)
	if err != nil {
		return nil, oops.With("directory", s.bundlePath, "context", "failed to read bundles directory").Wrap(err)
	}

	bundles := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (*domain.Bundle, bool) {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			return nil, false
		}

		record, err := s.readRecord(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || record.Bundle == nil {
			return nil, false
		}
		return record.Bundle, true
	})

	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ChannelID < bundles[j].ChannelID })
	return bundles, nil
}

func (s *FileStorage) UpsertBundle(_ context.Context, bundle *domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(bundle.ChannelID)
	if err != nil {
		return err
	}
	stored := *bundle
	record.Bundle = &stored
	return s.writeRecord(bundle.ChannelID, record)
}

func (s *FileStorage) SwapMessageID(_ context.Context, channelID string, oldID, newID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(channelID)
	if err != nil {
		return false, err
	}
	if record.Bundle == nil {
		return false, errors.NotFound(errors.ErrBundleNotFound, "channel_id", channelID)
	}
	if record.Bundle.MessageID != oldID {
		return false, nil
	}
	record.Bundle.MessageID = newID
	return true, s.writeRecord(channelID, record)
}

func (s *FileStorage) ListGroups(_ context.Context, channelID string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.readRecord(channelID)
	if err != nil {
		return nil, err
	}
	groups := lo.Map(record.Groups, func(g *domain.Group, _ int) *domain.Group {
		return &domain.Group{ChannelID: channelID, Name: g.Name, LabelFilters: nonNil(g.LabelFilters)}
	})
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *FileStorage) UpsertGroup(_ context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(group.ChannelID)
	if err != nil {
		return err
	}
	stored := &domain.Group{ChannelID: group.ChannelID, Name: group.Name, LabelFilters: nonNil(group.LabelFilters)}
	if _, idx, ok := lo.FindIndexOf(record.Groups, func(g *domain.Group) bool { return g.Name == group.Name }); ok {
		record.Groups[idx] = stored
	} else {
		record.Groups = append(record.Groups, stored)
	}
	return s.writeRecord(group.ChannelID, record)
}

func (s *FileStorage) DeleteGroup(_ context.Context, channelID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(channelID)
	if err != nil {
		return false, err
	}
	kept := lo.Reject(record.Groups, func(g *domain.Group, _ int) bool { return g.Name == name })
	if len(kept) == len(record.Groups) {
		return false, nil
	}
	record.Groups = kept
	return true, s.writeRecord(channelID, record)
}

func (s *FileStorage) RenameGroup(_ context.Context, channelID, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(channelID)
	if err != nil {
		return err
	}
	group, found := lo.Find(record.Groups, func(g *domain.Group) bool { return g.Name == oldName })
	if !found {
		return errors.NotFound(errors.ErrGroupNotFound, "channel_id", channelID, "group", oldName)
	}
	if oldName == newName {
		return nil
	}
	if lo.ContainsBy(record.Groups, func(g *domain.Group) bool { return g.Name == newName }) {
		return errors.Validation(errors.ErrGroupExists, "channel_id", channelID, "group", newName)
	}
	group.Name = newName
	return s.writeRecord(channelID, record)
}

func (s *FileStorage) SavePreset(_ context.Context, preset *domain.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.readPresets()
	if err != nil {
		return err
	}
	presets[preset.Name] = &domain.Preset{
		Name:            preset.Name,
		LabelFilters:    nonNil(preset.LabelFilters),
		IntervalMinutes: preset.IntervalMinutes,
	}

	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return oops.With("preset", preset.Name, "context", "failed to marshal presets").Wrap(err)
	}
	return writeFileAtomic(s.presetsFile, data)
}

func (s *FileStorage) GetPreset(_ context.Context, name string) (*domain.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	presets, err := s.readPresets()
	if err != nil {
		return nil, err
	}
	preset, ok := presets[name]
	if !ok {
		return nil, errors.NotFound(errors.ErrPresetNotFound, "preset", name)
	}
	return preset, nil
}

func (s *FileStorage) ListPresets(_ context.Context, prefix string) ([]*domain.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	presets, err := s.readPresets()
	if err != nil {
		return nil, err
	}
	matched := lo.Filter(lo.Values(presets), func(p *domain.Preset, _ int) bool {
		return strings.HasPrefix(p.Name, prefix)
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	if len(matched) > presetListLimit {
		matched = matched[:presetListLimit]
	}
	return matched, nil
}

// readRecord returns an empty record when the channel has no file yet
func (s *FileStorage) readRecord(channelID string) (*channelRecord, error) {
	data, err := os.ReadFile(s.recordPath(channelID))
	if err != nil {
		if os.IsNotExist(err) {
			return &channelRecord{}, nil
		}
		return nil, oops.With("channel_id", channelID, "context", "failed to read bundle file").Wrap(err)
	}

	var record channelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to unmarshal bundle file").Wrap(err)
	}
	return &record, nil
}

func (s *FileStorage) writeRecord(channelID string, record *channelRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return oops.With("channel_id", channelID, "context", "failed to marshal bundle file").Wrap(err)
	}
	return writeFileAtomic(s.recordPath(channelID), data)
}

func (s *FileStorage) readPresets() (map[string]*domain.Preset, error) {
	presets := map[string]*domain.Preset{}
	data, err := os.ReadFile(s.presetsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return presets, nil
		}
		return nil, oops.With("path", s.presetsFile, "context", "failed to read presets").Wrap(err)
	}
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, oops.With("path", s.presetsFile, "context", "failed to unmarshal presets").Wrap(err)
	}
	return presets, nil
}

func (s *FileStorage) recordPath(channelID string) string {
	return filepath.Join(s.bundlePath, sanitizeFileName(channelID)+".json")
}

// sanitizeFileName keeps channel ids like "@name" or "-100123" usable as file names
func sanitizeFileName(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, id)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return oops.With("path", path, "context", "failed to write file").Wrap(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return oops.With("path", path, "context", "failed to replace file").Wrap(err)
	}
	return nil
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
