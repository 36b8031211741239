// Package sqlite implements the user directory over a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/keywarden/internal/directory"
	"github.com/louisbranch/keywarden/internal/directory/sqlite/migrations"
	"github.com/louisbranch/keywarden/internal/platform/errors"
	"github.com/louisbranch/keywarden/internal/platform/storage/sqlitemigrate"
)

const getPrefsQuery = `
SELECT values_json, version
FROM user_prefs
WHERE user_id = ?1;
`

const insertPrefsQuery = `
INSERT INTO user_prefs (user_id, values_json, version, updated_at)
VALUES (?1, ?2, 1, ?3)
ON CONFLICT(user_id) DO NOTHING;
`

const updatePrefsQuery = `
UPDATE user_prefs
SET values_json = ?2, version = version + 1, updated_at = ?3
WHERE user_id = ?1 AND version = ?4;
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Store implements directory.Store over SQLite. Version checks ride on the
// row's version column, so conditional writes need no transaction.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a directory SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, clock: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// WithClock overrides the time source. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetPrefs returns the stored prefs for a user.
func (s *Store) GetPrefs(ctx context.Context, userID string) (directory.Prefs, error) {
	if s == nil || s.sqlDB == nil {
		return directory.Prefs{}, fmt.Errorf("store is not initialized")
	}

	var valuesJSON string
	var version int64
	err := s.sqlDB.QueryRowContext(ctx, getPrefsQuery, userID).Scan(&valuesJSON, &version)
	if err == sql.ErrNoRows {
		return directory.Prefs{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Prefs{}, errors.Wrap(errors.CodePersistence, "query user prefs", err)
	}

	values := map[string]string{}
	if valuesJSON != "" {
		if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
			return directory.Prefs{}, errors.Wrap(errors.CodePersistence, "decode user prefs", err)
		}
	}
	return directory.Prefs{Values: values, Version: version}, nil
}

// SetPrefs writes the full map back, conditioned on the version read. An
// expectedVersion of zero creates the row.
func (s *Store) SetPrefs(ctx context.Context, userID string, values map[string]string, expectedVersion int64) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if values == nil {
		values = map[string]string{}
	}

	encoded, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(errors.CodePersistence, "encode user prefs", err)
	}
	now := toMillis(s.clock())

	var result sql.Result
	if expectedVersion == 0 {
		result, err = s.sqlDB.ExecContext(ctx, insertPrefsQuery, userID, string(encoded), now)
	} else {
		result, err = s.sqlDB.ExecContext(ctx, updatePrefsQuery, userID, string(encoded), now, expectedVersion)
	}
	if err != nil {
		return errors.Wrap(errors.CodePersistence, "write user prefs", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.CodePersistence, "write user prefs", err)
	}
	if affected == 0 {
		return directory.ErrVersionConflict
	}
	return nil
}
