package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps progress in a single SQLite database file
type SQLiteStorage struct {
	path   string
	maxAge time.Duration
	now    func() time.Time

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStorage creates a store backed by the database at path. The
// database is opened lazily on first use.
func NewSQLiteStorage(path string, maxAge time.Duration) *SQLiteStorage {
	return &SQLiteStorage{path: path, maxAge: maxAge, now: time.Now}
}

// Init opens the database and creates the schema
func (s *SQLiteStorage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("%w: sqlite path is required", ErrStorageOperation)
	}
	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: cannot create database directory: %v", ErrStorageOperation, err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %v", ErrStorageOperation, err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS progress (
			key TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			items INTEGER NOT NULL,
			saved_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: create schema: %v", ErrStorageOperation, err)
	}

	s.db = db
	return nil
}

// Save upserts progress, stamping SavedAt
func (s *SQLiteStorage) Save(ctx context.Context, progress *Progress) error {
	if progress == nil {
		return fmt.Errorf("%w: progress cannot be nil", ErrJSONSerialization)
	}
	if err := ValidateKey(progress.Key); err != nil {
		return err
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}

	progress.SavedAt = s.now()
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("%w: failed to encode progress: %v", ErrJSONSerialization, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO progress (key, kind, items, saved_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			items = excluded.items,
			saved_at = excluded.saved_at,
			payload = excluded.payload
	`, progress.Key, string(progress.Kind), len(progress.Items), progress.SavedAt.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrStorageOperation, progress.Key, err)
	}
	return nil
}

// Load reads progress for key. Expired progress is removed and reported as
// ErrProgressExpired.
func (s *SQLiteStorage) Load(ctx context.Context, key string) (*Progress, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM progress WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProgressNotFound, key)
		}
		return nil, fmt.Errorf("%w: load %s: %v", ErrStorageOperation, key, err)
	}

	var progress Progress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorruptedFile, key, err)
	}
	if err := progress.validate(); err != nil {
		return nil, err
	}

	if expired(progress.SavedAt, s.maxAge, s.now()) {
		_, _ = db.ExecContext(ctx, `DELETE FROM progress WHERE key = ?`, key)
		return nil, fmt.Errorf("%w: %s saved %s", ErrProgressExpired, key, progress.SavedAt.Format(time.RFC3339))
	}
	return &progress, nil
}

// Delete removes progress for key; missing progress is not an error
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM progress WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStorageOperation, key, err)
	}
	return nil
}

// List summarizes every stored session, newest first
func (s *SQLiteStorage) List(ctx context.Context) ([]ProgressInfo, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT key, kind, items, saved_at FROM progress`)
	if err != nil {
		return nil, fmt.Errorf("%w: list progress: %v", ErrStorageOperation, err)
	}
	defer func() { _ = rows.Close() }()

	now := s.now()
	var infos []ProgressInfo
	for rows.Next() {
		var (
			info    ProgressInfo
			kind    string
			savedAt int64
		)
		if err := rows.Scan(&info.Key, &kind, &info.Items, &savedAt); err != nil {
			return nil, fmt.Errorf("%w: scan progress: %v", ErrStorageOperation, err)
		}
		info.Kind = ListKind(kind)
		info.SavedAt = time.Unix(0, savedAt)
		info.Expired = expired(info.SavedAt, s.maxAge, now)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list progress: %v", ErrStorageOperation, err)
	}

	sortInfos(infos)
	return infos, nil
}

// Close releases the database handle
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStorage) getDB(ctx context.Context) (*sql.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db, nil
}
