package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/agent-notify/internal/model"
)

// SQLiteStore implements Snapshotter and Settings using a local SQLite
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

var (
	_ Snapshotter = (*SQLiteStore)(nil)
	_ Settings    = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the database shape of a snapshot record.
type notificationRow struct {
	ID        string    `db:"id"`
	Position  int       `db:"position"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Data      string    `db:"data"`
	Read      int       `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveSnapshot replaces the stored history with items (newest first).
func (s *SQLiteStore) SaveSnapshot(
	ctx context.Context,
	items []model.Notification,
	unread int,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, position, type, title, message, data, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing snapshot statement: %w", err)
	}
	defer stmt.Close()

	for i, n := range items {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshaling data for notification %s: %w", n.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			n.ID, i, string(n.Type), n.Title, n.Message,
			string(data), boolToInt(n.Read), n.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving notification %s: %w", n.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshot_meta (id, unread_count, saved_at)
		VALUES (1, ?, ?)`,
		unread, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot metadata: %w", err)
	}

	return tx.Commit()
}

// LoadSnapshot returns the stored history (newest first) and its unread
// counter. An empty database yields no items and zero.
func (s *SQLiteStore) LoadSnapshot(
	ctx context.Context,
) ([]model.Notification, int, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM notifications ORDER BY position ASC",
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying snapshot: %w", err)
	}

	items := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n := model.Notification{
			ID:        r.ID,
			Type:      model.NotificationType(r.Type),
			Title:     r.Title,
			Message:   r.Message,
			Read:      r.Read != 0,
			CreatedAt: r.CreatedAt,
		}
		if r.Data != "" && r.Data != "null" {
			if err := json.Unmarshal([]byte(r.Data), &n.Data); err != nil {
				return nil, 0, fmt.Errorf("unmarshaling data for notification %s: %w", r.ID, err)
			}
		}
		items = append(items, n)
	}

	var unread int
	err = s.db.GetContext(ctx, &unread, "SELECT unread_count FROM snapshot_meta WHERE id = 1")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("reading snapshot metadata: %w", err)
	}

	return items, unread, nil
}

// GetSetting returns the value stored under key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key. Deleting an unknown key is not an error.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
