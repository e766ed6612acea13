package repository

import (
	"context"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
)

// Repository defines the interface for bundle configuration persistence.
// Groups are returned sorted by name.
type Repository interface {
	GetBundle(ctx context.Context, channelID string) (*domain.Bundle, error)
	ListBundles(ctx context.Context) ([]*domain.Bundle, error)
	UpsertBundle(ctx context.Context, bundle *domain.Bundle) error
	// SwapMessageID replaces the stored message id only while it still equals
	// oldID, reporting whether it did
	SwapMessageID(ctx context.Context, channelID string, oldID, newID int) (bool, error)

	ListGroups(ctx context.Context, channelID string) ([]*domain.Group, error)
	UpsertGroup(ctx context.Context, group *domain.Group) error
	DeleteGroup(ctx context.Context, channelID, name string) (bool, error)
	RenameGroup(ctx context.Context, channelID, oldName, newName string) error

	SavePreset(ctx context.Context, preset *domain.Preset) error
	GetPreset(ctx context.Context, name string) (*domain.Preset, error)
	ListPresets(ctx context.Context, prefix string) ([]*domain.Preset, error)

	Close() error
}

// presetListLimit caps ListPresets results
const presetListLimit = 25
