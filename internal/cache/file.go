package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const (
	fileExtension = ".json"
	lockFileName  = ".cache.lock"
)

type fileStore struct {
	basePath string

	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates a Store that keeps one JSON file per key under
// basePath. Writes go through a temporary file and an atomic rename, and
// are serialized across processes with a lock file in basePath.
func NewFileStore(basePath string) (Store, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", basePath, err)
	}
	return &fileStore{
		basePath: basePath,
		lock:     flock.New(filepath.Join(basePath, lockFileName)),
	}, nil
}

func (f *fileStore) path(key string) string {
	return filepath.Join(f.basePath, key+fileExtension)
}

func (f *fileStore) ReadSet(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	// #nosec G304 -- the key is validated to contain no path separators
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return data, nil
}

func (f *fileStore) WriteSet(_ context.Context, key string, payload []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	unlock, err := f.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	filePath := f.path(key)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0600); err != nil {
		return fmt.Errorf("failed to write temporary cache file for key %s: %w", key, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file for key %s: %w", key, err)
	}
	return nil
}

func (f *fileStore) DeleteSet(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	unlock, err := f.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// acquire takes the in-process mutex and then the directory lock file.
func (f *fileStore) acquire() (func(), error) {
	f.mu.Lock()
	if err := f.lock.Lock(); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("failed to lock cache directory: %w", err)
	}
	return func() {
		_ = f.lock.Unlock()
		f.mu.Unlock()
	}, nil
}
