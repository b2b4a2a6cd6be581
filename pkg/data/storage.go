package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pashagolub/listrank/pkg/ranking"
)

// Error types for storage operations
var (
	ErrStorageOperation  = errors.New("storage operation failed")
	ErrJSONSerialization = errors.New("JSON serialization error")
	ErrAtomicWrite       = errors.New("atomic write operation failed")
	ErrCorruptedFile     = errors.New("corrupted file detected")
	ErrProgressNotFound  = errors.New("saved progress not found")
	ErrProgressExpired   = errors.New("saved progress has expired")
	ErrInvalidKey        = errors.New("invalid progress key")
)

// progressFileExt is appended to the key to form the file name
const progressFileExt = ".json"

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Progress is a resumable ranking session
type Progress struct {
	Key         string          `json:"key"`
	Kind        ListKind        `json:"kind"`
	Format      ListFormat      `json:"format"`
	Items       []ranking.Item  `json:"items"`
	EngineState json.RawMessage `json:"engineState"`
	Original    []byte          `json:"originalList,omitempty"` // raw import, needed for XML export
	DisplayMode string          `json:"displayMode,omitempty"`
	SavedAt     time.Time       `json:"savedAt"`
}

// ProgressInfo summarizes a saved session for listings
type ProgressInfo struct {
	Key     string    `json:"key"`
	Kind    ListKind  `json:"kind"`
	Items   int       `json:"items"`
	SavedAt time.Time `json:"savedAt"`
	Expired bool      `json:"expired"`
}

// Storage persists ranking progress between runs
type Storage interface {
	Save(ctx context.Context, progress *Progress) error
	Load(ctx context.Context, key string) (*Progress, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]ProgressInfo, error)
	Close() error
}

// NewStorage creates the backend selected by config
func NewStorage(config StorageConfig) (Storage, error) {
	path := config.Path
	if path == "" {
		dir, err := DefaultStorageDir()
		if err != nil {
			return nil, err
		}
		path = dir
		if config.Backend == "sqlite" {
			path = filepath.Join(dir, "progress.db")
		}
	}

	switch config.Backend {
	case "", "file":
		return NewFileStorage(path, config.MaxAge), nil
	case "sqlite":
		return NewSQLiteStorage(path, config.MaxAge), nil
	default:
		return nil, fmt.Errorf("%w: unsupported storage backend: %s", ErrStorageOperation, config.Backend)
	}
}

// DefaultStorageDir returns the per-user directory used when no path is configured
func DefaultStorageDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: cannot locate user config directory: %v", ErrStorageOperation, err)
	}
	return filepath.Join(base, "listrank"), nil
}

// KeyFromPath derives a progress key from a list file name
func KeyFromPath(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, base)
	key = strings.TrimLeft(key, "._-")
	if key == "" {
		return "list"
	}
	if len(key) > 128 {
		key = key[:128]
	}
	return key
}

// ValidateKey checks that key is usable as a file name and database key
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// validate performs basic checks on decoded progress
func (p *Progress) validate() error {
	if err := ValidateKey(p.Key); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: progress has no items", ErrCorruptedFile)
	}
	if len(p.EngineState) == 0 {
		return fmt.Errorf("%w: progress has no engine state", ErrCorruptedFile)
	}
	return nil
}

// FileStorage keeps one JSON document per key in a directory
type FileStorage struct {
	mu           sync.RWMutex     // Protects concurrent operations
	dir          string           // Directory holding progress files
	maxAge       time.Duration    // Progress older than this is discarded
	atomicWrites bool             // Whether to use atomic writes for safety
	now          func() time.Time // Clock, replaceable in tests
}

// NewFileStorage creates a new FileStorage rooted at dir
func NewFileStorage(dir string, maxAge time.Duration) *FileStorage {
	return &FileStorage{
		dir:          dir,
		maxAge:       maxAge,
		atomicWrites: true,
		now:          time.Now,
	}
}

// SetAtomicWrites enables or disables atomic write operations
func (fs *FileStorage) SetAtomicWrites(enabled bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.atomicWrites = enabled
}

// Save writes progress, stamping SavedAt
func (fs *FileStorage) Save(ctx context.Context, progress *Progress) error {
	if progress == nil {
		return fmt.Errorf("%w: progress cannot be nil", ErrJSONSerialization)
	}
	if err := ValidateKey(progress.Key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	progress.SavedAt = fs.now()

	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("%w: cannot create progress directory: %v", ErrStorageOperation, err)
	}

	filename := fs.path(progress.Key)
	if fs.atomicWrites {
		return fs.saveAtomic(progress, filename)
	}
	return fs.saveDirect(progress, filename)
}

// saveAtomic performs an atomic write using temporary file + rename
func (fs *FileStorage) saveAtomic(progress *Progress, filename string) error {
	tempFile := filename + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("%w: cannot create temp progress file: %v", ErrAtomicWrite, err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(progress); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to encode progress: %v", ErrJSONSerialization, err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to sync progress file: %v", ErrAtomicWrite, err)
	}

	_ = file.Close()

	if err := os.Rename(tempFile, filename); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: atomic rename failed: %v", ErrAtomicWrite, err)
	}

	return nil
}

// saveDirect performs direct file write (non-atomic)
func (fs *FileStorage) saveDirect(progress *Progress, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("%w: cannot create progress file: %v", ErrJSONSerialization, err)
	}
	defer func() { _ = file.Close() }()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(progress); err != nil {
		return fmt.Errorf("%w: failed to encode progress: %v", ErrJSONSerialization, err)
	}

	return file.Sync()
}

// Load reads progress for key. Expired progress is removed and reported as
// ErrProgressExpired.
func (fs *FileStorage) Load(ctx context.Context, key string) (*Progress, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	progress, err := fs.loadFromFile(fs.path(key))
	if err != nil {
		return nil, err
	}

	if expired(progress.SavedAt, fs.maxAge, fs.now()) {
		_ = os.Remove(fs.path(key))
		return nil, fmt.Errorf("%w: %s saved %s", ErrProgressExpired, key, progress.SavedAt.Format(time.RFC3339))
	}
	return progress, nil
}

// loadFromFile loads progress from a specific file with corruption detection
func (fs *FileStorage) loadFromFile(filename string) (*Progress, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProgressNotFound, filepath.Base(filename))
		}
		return nil, fmt.Errorf("%w: cannot open progress file: %v", ErrStorageOperation, err)
	}
	defer func() { _ = file.Close() }()

	var progress Progress
	if err := json.NewDecoder(file).Decode(&progress); err != nil {
		return nil, fmt.Errorf("%w: corrupted progress file: %v", ErrCorruptedFile, err)
	}
	if err := progress.validate(); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Delete removes progress for key; missing progress is not an error
func (fs *FileStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: cannot delete progress: %v", ErrStorageOperation, err)
	}
	return nil
}

// List summarizes every readable progress file, newest first
func (fs *FileStorage) List(ctx context.Context) ([]ProgressInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(fs.dir, "*"+progressFileExt))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot list progress: %v", ErrStorageOperation, err)
	}

	now := fs.now()
	infos := make([]ProgressInfo, 0, len(matches))
	for _, filename := range matches {
		progress, err := fs.loadFromFile(filename)
		if err != nil {
			continue
		}
		infos = append(infos, ProgressInfo{
			Key:     progress.Key,
			Kind:    progress.Kind,
			Items:   len(progress.Items),
			SavedAt: progress.SavedAt,
			Expired: expired(progress.SavedAt, fs.maxAge, now),
		})
	}
	sortInfos(infos)
	return infos, nil
}

// Close is a no-op for file storage
func (fs *FileStorage) Close() error {
	return nil
}

func (fs *FileStorage) path(key string) string {
	return filepath.Join(fs.dir, key+progressFileExt)
}

func expired(savedAt time.Time, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(savedAt) > maxAge
}

func sortInfos(infos []ProgressInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SavedAt.After(infos[j].SavedAt)
		}
		return infos[i].Key < infos[j].Key
	})
}
