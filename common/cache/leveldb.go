// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
)

// leveldbBackend stores all entries in a single LevelDB database.
type leveldbBackend struct {
	db *leveldb.DB
}

func newLevelDBBackend(directory string) (*leveldbBackend, error) {
	path := filepath.Join(directory, "leveldb")
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache database %q: %w", path, err)
	}
	return &leveldbBackend{db: db}, nil
}

func (b *leveldbBackend) get(key string) ([]byte, error) {
	value, err := b.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errMissing
	}
	return value, err
}

func (b *leveldbBackend) put(key string, value []byte) error {
	if err := b.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("unable to store %q in cache database: %w", key, err)
	}
	return nil
}

func (b *leveldbBackend) close() error {
	return b.db.Close()
}
