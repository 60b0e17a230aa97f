package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// File keeps the settings document in a YAML file. Writes go through a
// temporary file and a rename so readers never see a partial document.
type File struct {
	path string
	mu   sync.Mutex
}

var _ ports.SettingsStore = (*File)(nil)

func NewFile(path string) *File {
	return &File{path: path}
}

// Load returns an empty document when the file does not exist yet.
func (f *File) Load(_ context.Context) (*domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) Save(_ context.Context, s *domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(s)
}

func (f *File) Update(_ context.Context, fn func(s *domain.Settings) error) (*domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.load()
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := f.save(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *File) load() (*domain.Settings, error) {
	data, err := os.ReadFile(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read settings %s: %w", f.path, err)
	}
	return decode(data)
}

func (f *File) save(s *domain.Settings) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace settings %s: %w", f.path, err)
	}
	return nil
}
