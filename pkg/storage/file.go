package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/levenlabs/go-lflag"
)

// FileProvider implements Database with one JSON document per instance in a
// local data directory. Writes go through a temp file and rename so a crash
// mid-write never truncates the previous snapshot.
type FileProvider struct {
	dir string
}

// configuredFile sets up the file provider.
func configuredFile() *FileProvider {
	dir := lflag.String("file-data-dir", "./data", "Directory for per-instance state documents")

	f := &FileProvider{}

	lflag.Do(func() {
		f.dir = *dir
	})

	return f
}

// NewFileProvider builds a provider directly, used by tests.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// Init creates the data directory.
func (f *FileProvider) Init() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", f.dir, err)
	}
	return nil
}

// Close is a no-op for the file provider.
func (f *FileProvider) Close() error {
	return nil
}

func (f *FileProvider) path(instanceID string) (string, error) {
	if instanceID == "" || strings.ContainsAny(instanceID, `/\`) {
		return "", fmt.Errorf("invalid instance id %q", instanceID)
	}
	return filepath.Join(f.dir, instanceID+".json"), nil
}

// LoadDocument reads the instance document, ErrNotFound if none exists yet.
func (f *FileProvider) LoadDocument(_ context.Context, instanceID string) ([]byte, error) {
	path, err := f.path(instanceID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return raw, nil
}

// ListInstances returns the instance IDs with a stored document.
func (f *FileProvider) ListInstances(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data dir %s: %w", f.dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// SaveDocument atomically replaces the instance document.
func (f *FileProvider) SaveDocument(_ context.Context, instanceID string, raw []byte) error {
	path, err := f.path(instanceID)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace document %s: %w", path, err)
	}
	return nil
}
