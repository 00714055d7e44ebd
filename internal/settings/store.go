package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store mirrors the durable settings in memory. Reads return copies; writes
// are last-write-wins and only swap the mirror after the database commit.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	defaults Settings

	mu      sync.Mutex
	current Settings
}

// Open loads the persisted settings from the database at path, creating the
// database on first run. Missing keys fall back to defaults.
func Open(path string, defaults Settings, logger *slog.Logger) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, logger: logger, defaults: defaults}
	current, err := s.load()
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("failed to load settings: %w (also failed to close db: %v)", err, cerr)
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	s.current = current
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Current returns a copy of the live settings.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Update normalizes, persists, and swaps in the new settings, returning what
// was actually stored. The mirror is untouched when the write fails.
func (s *Store) Update(ctx context.Context, next Settings) (Settings, error) {
	next.normalize(s.defaults)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, next); err != nil {
		return Settings{}, err
	}
	s.current = next.Clone()
	return s.current.Clone(), nil
}

func (s *Store) persist(ctx context.Context, v Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("failed to roll back settings transaction", "error", err)
		}
	}()

	for key, value := range v.encode() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}

func (s *Store) load() (Settings, error) {
	current := s.defaults.Clone()

	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, fmt.Errorf("failed to scan setting: %w", err)
		}
		current.apply(key, value)
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("error iterating settings: %w", err)
	}

	current.normalize(s.defaults)
	return current, nil
}
