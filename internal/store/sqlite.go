package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	maxRetries = 3
	baseDelay  = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writes to avoid SQLITE_BUSY between our own connections
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %w", domain.ErrFilesystem, err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS learning_profiles (
		learner_id TEXT NOT NULL,
		course_id TEXT NOT NULL DEFAULT '',
		profile_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, course_id)
	);

	CREATE TABLE IF NOT EXISTS pending_installation (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		pending_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_snapshot (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		snapshot_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetProfile retrieves a learning profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, learnerID, courseID string) (*domain.LearningProfile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile_json FROM learning_profiles WHERE learner_id = ? AND course_id = ?`,
		learnerID, courseID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	var p domain.LearningProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// PutProfile creates or replaces a learning profile.
func (s *SQLiteStore) PutProfile(ctx context.Context, learnerID, courseID string, p *domain.LearningProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.exec(ctx, "put profile", `
		INSERT INTO learning_profiles (learner_id, course_id, profile_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(learner_id, course_id) DO UPDATE SET
			profile_json = excluded.profile_json,
			updated_at = excluded.updated_at`,
		learnerID, courseID, string(data), p.UpdatedAt.Unix(),
	)
}

// GetPendingInstallation returns the pending starter installation, if any.
func (s *SQLiteStore) GetPendingInstallation(ctx context.Context) (*domain.PendingStarterInstallation, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT pending_json FROM pending_installation WHERE slot = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending installation: %w", err)
	}

	var p domain.PendingStarterInstallation
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode pending installation: %w", err)
	}
	return &p, nil
}

// SavePendingInstallation overwrites the single pending installation slot.
func (s *SQLiteStore) SavePendingInstallation(ctx context.Context, p *domain.PendingStarterInstallation) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending installation: %w", err)
	}
	return s.exec(ctx, "save pending installation", `
		INSERT INTO pending_installation (slot, pending_json, created_at)
		VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			pending_json = excluded.pending_json,
			created_at = excluded.created_at`,
		string(data), p.CreatedAt.Unix(),
	)
}

// ClearPendingInstallation empties the pending installation slot.
func (s *SQLiteStore) ClearPendingInstallation(ctx context.Context) error {
	return s.exec(ctx, "clear pending installation", `DELETE FROM pending_installation WHERE slot = 1`)
}

// GetSessionSnapshot returns the persisted active session, if any.
func (s *SQLiteStore) GetSessionSnapshot(ctx context.Context) (*domain.SessionSnapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot_json FROM session_snapshot WHERE slot = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session snapshot: %w", err)
	}

	var snap domain.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSessionSnapshot overwrites the persisted active session.
func (s *SQLiteStore) SaveSessionSnapshot(ctx context.Context, snap *domain.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	return s.exec(ctx, "save session snapshot", `
		INSERT INTO session_snapshot (slot, snapshot_json, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at`,
		string(data), snap.UpdatedAt.Unix(),
	)
}

// ClearSessionSnapshot removes the persisted active session.
func (s *SQLiteStore) ClearSessionSnapshot(ctx context.Context) error {
	return s.exec(ctx, "clear session snapshot", `DELETE FROM session_snapshot WHERE slot = 1`)
}

// GetSetting returns a stored setting, or "" if unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting stores a setting.
func (s *SQLiteStore) PutSetting(ctx context.Context, key, value string) error {
	return s.exec(ctx, "put setting", `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
}

// exec runs a write statement, retrying with exponential backoff on
// SQLITE_BUSY and "database is locked".
func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("SQLite write conflict, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Repository = (*SQLiteStore)(nil)
