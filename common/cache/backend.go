// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// errMissing is returned by a backend when an entry does not exist.
var errMissing = errors.New("missing entry")

// backend is a storage for raw cache entries.
type backend interface {
	get(key string) ([]byte, error)
	put(key string, value []byte) error
	close() error
}

// filesBackend stores each entry in its own JSON file.
type filesBackend struct {
	directory string
}

func newFilesBackend(directory string) (*filesBackend, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory %q: %w", directory, err)
	}
	return &filesBackend{directory: directory}, nil
}

func (b *filesBackend) path(key string) string {
	return filepath.Join(b.directory, fmt.Sprintf("%s.json", key))
}

func (b *filesBackend) get(key string) ([]byte, error) {
	content, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errMissing
	}
	return content, err
}

// put writes the entry to a temporary file and moves it to its final
// location. Readers never see a partially written entry.
func (b *filesBackend) put(key string, value []byte) error {
	target := b.path(key)
	tmpFile, err := os.CreateTemp(b.directory, fmt.Sprintf("%s-*", filepath.Base(target)))
	if err != nil {
		return fmt.Errorf("unable to create cache file %q: %w", target, err)
	}
	defer func() {
		tmpFile.Close()           // ignore errors
		os.Remove(tmpFile.Name()) // ignore errors
	}()
	if _, err := tmpFile.Write(value); err != nil {
		return fmt.Errorf("unable to write cache file %q: %w", target, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("unable to write cache file %q: %w", target, err)
	}
	if err := os.Rename(tmpFile.Name(), target); err != nil {
		return fmt.Errorf("unable to write cache file %q: %w", target, err)
	}
	return nil
}

func (b *filesBackend) close() error {
	return nil
}
