package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps Settings in a yaml or json file. Saves write a temporary
// file next to the target and rename it, so a crash never leaves half a file.
type FileStore struct {
	path       string
	serializer Serializer
	mu         sync.RWMutex
}

// NewFileStore returns a store for path, the format follows the extension.
func NewFileStore(path string) (*FileStore, error) {
	serializer, err := SerializerFor(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return &FileStore{path: path, serializer: serializer}, nil
}

// Path returns the settings file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (Settings, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return readSettings(f.path, f.serializer)
}

func (f *FileStore) Save(_ context.Context, s Settings) error {
	b, err := f.serializer.Serialize(s)
	if err != nil {
		return fmt.Errorf("serialize settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	// settings may hold broker credentials.
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod settings: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Close() error {
	return nil
}

func readSettings(path string, serializer Serializer) (Settings, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, ErrSettingsNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	if len(b) == 0 {
		return Settings{}, ErrEmptyContents
	}

	var s Settings
	if err := serializer.Deserialize(b, &s); err != nil {
		return Settings{}, fmt.Errorf("deserialize settings %s: %w", path, err)
	}
	return s, nil
}
