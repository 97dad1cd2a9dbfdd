package database

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// BitcaskDB is a Store backed by a bitcask directory.
type BitcaskDB struct {
	db        *bitcask.Bitcask
	closeOnce sync.Once
	closeErr  error
}

// OpenBitcask opens (or creates) a bitcask store in dir.
func OpenBitcask(dir string) (*BitcaskDB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create bitcask directory %s: %w", dir, err)
	}
	db, err := bitcask.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask store at %s: %w", dir, err)
	}
	log.Debugf("Bitcask state store opened at %s", dir)
	return &BitcaskDB{db: db}, nil
}

func (b *BitcaskDB) Get(key []byte) ([]byte, error) {
	value, err := b.db.Get(key)
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %s: %w", string(key), err)
	}
	return value, nil
}

func (b *BitcaskDB) Put(key []byte, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if err := b.db.Put(key, value); err != nil {
		return fmt.Errorf("error storing key %s: %w", string(key), err)
	}
	// Preferences are write-through; don't leave them in the OS buffer.
	return b.db.Sync()
}

func (b *BitcaskDB) Delete(key []byte) error {
	if err := b.db.Delete(key); err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return b.db.Sync()
}

func (b *BitcaskDB) Has(key []byte) bool {
	return b.db.Has(key)
}

// Fold visits every pair in key order.
func (b *BitcaskDB) Fold(fn func(key []byte, value []byte) error) error {
	var keys []string
	if err := b.db.Fold(func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	}); err != nil {
		return fmt.Errorf("error listing bitcask keys: %w", err)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value, err := b.Get([]byte(k))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn([]byte(k), value); err != nil {
			return err
		}
	}
	return nil
}

func (b *BitcaskDB) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.db.Close()
	})
	return b.closeErr
}
