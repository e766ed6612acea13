package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS bundle (
	channel_id TEXT PRIMARY KEY,
	message_id INTEGER NOT NULL DEFAULT 0,
	interval_min INTEGER NOT NULL,
	pin INTEGER NOT NULL DEFAULT 1,
	suppress INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS bundle_group (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id TEXT NOT NULL,
	group_name TEXT NOT NULL,
	label_filters TEXT NOT NULL DEFAULT '[]',
	UNIQUE(channel_id, group_name)
);

CREATE TABLE IF NOT EXISTS preset (
	name TEXT PRIMARY KEY,
	label_filters TEXT NOT NULL DEFAULT '[]',
	interval_min INTEGER NOT NULL
);
`

// SQLiteStorage implements Repository on an embedded SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) <basePath>/bot.db and applies the schema
func NewSQLiteStorage(basePath string) (Repository, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, oops.With("base_path", basePath, "context", "failed to create storage directory").Wrap(err)
	}
	path := filepath.Join(basePath, "bot.db")
	return OpenSQLite(path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

// OpenSQLite opens a database from a modernc sqlite DSN
func OpenSQLite(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.With("dsn", dsn, "context", "failed to open database").Wrap(err)
	}
	// one writer keeps SQLITE_BUSY out of the scheduler goroutines
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, oops.With("dsn", dsn, "context", "failed to apply schema").Wrap(err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) GetBundle(ctx context.Context, channelID string) (*domain.Bundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT channel_id, message_id, interval_min, pin, suppress FROM bundle WHERE channel_id = ?`, channelID)

	bundle, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.ErrBundleNotFound, "channel_id", channelID)
	}
	if err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to read bundle").Wrap(err)
	}
	return bundle, nil
}

func (s *SQLiteStorage) ListBundles(ctx context.Context) ([]*domain.Bundle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, message_id, interval_min, pin, suppress FROM bundle ORDER BY channel_id`)
	if err != nil {
		return nil, oops.With("context", "failed to list bundles").Wrap(err)
	}
	defer rows.Close()

	var bundles []*domain.Bundle
	for rows.Next() {
		bundle, err := scanBundle(rows)
		if err != nil {
			return nil, oops.With("context", "failed to scan bundle").Wrap(err)
		}
		bundles = append(bundles, bundle)
	}
	return bundles, rows.Err()
}

func (s *SQLiteStorage) UpsertBundle(ctx context.Context, bundle *domain.Bundle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bundle (channel_id, message_id, interval_min, pin, suppress)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			message_id = excluded.message_id,
			interval_min = excluded.interval_min,
			pin = excluded.pin,
			suppress = excluded.suppress`,
		bundle.ChannelID, bundle.MessageID, bundle.IntervalMinutes, bundle.Pin, bundle.Suppress)
	if err != nil {
		return oops.With("channel_id", bundle.ChannelID, "context", "failed to upsert bundle").Wrap(err)
	}
	return nil
}

func (s *SQLiteStorage) SwapMessageID(ctx context.Context, channelID string, oldID, newID int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bundle SET message_id = ? WHERE channel_id = ? AND message_id = ?`, newID, channelID, oldID)
	if err != nil {
		return false, oops.With("channel_id", channelID, "message_id", newID, "context", "failed to update message id").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.With("channel_id", channelID, "context", "failed to read affected rows").Wrap(err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetBundle(ctx, channelID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLiteStorage) ListGroups(ctx context.Context, channelID string) ([]*domain.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_name, label_filters FROM bundle_group WHERE channel_id = ? ORDER BY group_name`, channelID)
	if err != nil {
		return nil, oops.With("channel_id", channelID, "context", "failed to list groups").Wrap(err)
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		var name, filtersJSON string
		if err := rows.Scan(&name, &filtersJSON); err != nil {
			return nil, oops.With("channel_id", channelID, "context", "failed to scan group").Wrap(err)
		}
		filters, err := decodeFilters(filtersJSON)
		if err != nil {
			return nil, oops.With("channel_id", channelID, "group", name).Wrap(err)
		}
		groups = append(groups, &domain.Group{ChannelID: channelID, Name: name, LabelFilters: filters})
	}
	return groups, rows.Err()
}

func (s *SQLiteStorage) UpsertGroup(ctx context.Context, group *domain.Group) error {
	filtersJSON, err := encodeFilters(group.LabelFilters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bundle_group (channel_id, group_name, label_filters) VALUES (?, ?, ?)
		ON CONFLICT(channel_id, group_name) DO UPDATE SET label_filters = excluded.label_filters`,
		group.ChannelID, group.Name, filtersJSON)
	if err != nil {
		return oops.With("channel_id", group.ChannelID, "group", group.Name, "context", "failed to upsert group").Wrap(err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteGroup(ctx context.Context, channelID, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bundle_group WHERE channel_id = ? AND group_name = ?`, channelID, name)
	if err != nil {
		return false, oops.With("channel_id", channelID, "group", name, "context", "failed to delete group").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.With("channel_id", channelID, "group", name).Wrap(err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) RenameGroup(ctx context.Context, channelID, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bundle_group SET group_name = ? WHERE channel_id = ? AND group_name = ?`,
		newName, channelID, oldName)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Validation(errors.ErrGroupExists, "channel_id", channelID, "group", newName)
		}
		return oops.With("channel_id", channelID, "group", oldName, "context", "failed to rename group").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.With("channel_id", channelID, "group", oldName).Wrap(err)
	}
	if n == 0 {
		return errors.NotFound(errors.ErrGroupNotFound, "channel_id", channelID, "group", oldName)
	}
	return nil
}

func (s *SQLiteStorage) SavePreset(ctx context.Context, preset *domain.Preset) error {
	filtersJSON, err := encodeFilters(preset.LabelFilters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preset (name, label_filters, interval_min) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			label_filters = excluded.label_filters,
			interval_min = excluded.interval_min`,
		preset.Name, filtersJSON, preset.IntervalMinutes)
	if err != nil {
		return oops.With("preset", preset.Name, "context", "failed to save preset").Wrap(err)
	}
	return nil
}

func (s *SQLiteStorage) GetPreset(ctx context.Context, name string) (*domain.Preset, error) {
	var filtersJSON string
	preset := &domain.Preset{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT label_filters, interval_min FROM preset WHERE name = ?`, name).
		Scan(&filtersJSON, &preset.IntervalMinutes)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.ErrPresetNotFound, "preset", name)
	}
	if err != nil {
		return nil, oops.With("preset", name, "context", "failed to read preset").Wrap(err)
	}
	if preset.LabelFilters, err = decodeFilters(filtersJSON); err != nil {
		return nil, oops.With("preset", name).Wrap(err)
	}
	return preset, nil
}

func (s *SQLiteStorage) ListPresets(ctx context.Context, prefix string) ([]*domain.Preset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, label_filters, interval_min FROM preset WHERE name LIKE ? ESCAPE '\' ORDER BY name LIMIT ?`,
		escapeLike(prefix)+"%", presetListLimit)
	if err != nil {
		return nil, oops.With("prefix", prefix, "context", "failed to list presets").Wrap(err)
	}
	defer rows.Close()

	var presets []*domain.Preset
	for rows.Next() {
		var filtersJSON string
		preset := &domain.Preset{}
		if err := rows.Scan(&preset.Name, &filtersJSON, &preset.IntervalMinutes); err != nil {
			return nil, oops.With("context", "failed to scan preset").Wrap(err)
		}
		if preset.LabelFilters, err = decodeFilters(filtersJSON); err != nil {
			return nil, oops.With("preset", preset.Name).Wrap(err)
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBundle(row scanner) (*domain.Bundle, error) {
	var bundle domain.Bundle
	if err := row.Scan(&bundle.ChannelID, &bundle.MessageID, &bundle.IntervalMinutes, &bundle.Pin, &bundle.Suppress); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func encodeFilters(filters []string) (string, error) {
	if filters == nil {
		filters = []string{}
	}
	data, err := json.Marshal(filters)
	if err != nil {
		return "", oops.With("context", "failed to marshal label filters").Wrap(err)
	}
	return string(data), nil
}

func decodeFilters(raw string) ([]string, error) {
	filters := []string{}
	if raw == "" {
		return filters, nil
	}
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, oops.With("context", "failed to unmarshal label filters").Wrap(err)
	}
	return filters, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
