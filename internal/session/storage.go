package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Durable storage keys.
const (
	UserKey  = "user"
	TokenKey = "accessToken"
)

// Storage is a synchronous key/value store that survives process restarts.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

const storageFile = "session.json"

var errCorruptFile = errors.New("failed to parse session file")

// fileSnapshot is the on-disk layout of FileStorage.
type fileSnapshot struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStorage keeps values in a single JSON file on the local filesystem.
type FileStorage struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileStorage creates a file-backed storage.
// If baseDir is empty, uses ~/.jobcrew/
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".jobcrew")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("session storage initialized")

	return &FileStorage{baseDir: baseDir}, nil
}

// Path is the location of the session file.
func (f *FileStorage) Path() string {
	return filepath.Join(f.baseDir, storageFile)
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.load()
	if err != nil {
		return "", false, err
	}

	value, ok := snap.Values[key]
	return value, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, _, err := f.loadForWrite()
	if err != nil {
		return err
	}

	snap.Values[key] = value

	return f.save(snap)
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, discarded, err := f.loadForWrite()
	if err != nil {
		return err
	}

	if _, ok := snap.Values[key]; !ok && !discarded {
		return nil
	}
	delete(snap.Values, key)

	return f.save(snap)
}

// load reads the session file, returning an empty snapshot when it is missing.
func (f *FileStorage) load() (*fileSnapshot, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fileSnapshot{Version: 1, Values: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptFile, err)
	}

	if snap.Values == nil {
		snap.Values = map[string]string{}
	}

	return &snap, nil
}

// loadForWrite is load for callers about to rewrite the file. An unreadable
// session file is discarded so the write replaces it.
func (f *FileStorage) loadForWrite() (*fileSnapshot, bool, error) {
	snap, err := f.load()
	if errors.Is(err, errCorruptFile) {
		log.Warn().Err(err).Str("path", f.Path()).Msg("discarding unreadable session file")
		return &fileSnapshot{Version: 1, Values: map[string]string{}}, true, nil
	}
	return snap, false, err
}

// save writes the session file atomically.
func (f *FileStorage) save(snap *fileSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := f.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session file: %w", err)
	}

	return nil
}

// MemoryStorage is a Storage that lives only as long as the process.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
