// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package cache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/chartpulse/internal/config"
)

// Store is a Badger-backed cache with TTL support.
type Store struct {
	db    *badger.DB
	ttl   time.Duration // 0 means entries never expire
	owned bool          // Close closes db

	mu    sync.Mutex
	stats Stats
}

// Stats tracks cache performance.
type Stats struct {
	Hits   int64
	Misses int64
	Writes int64
}

// Open opens the cache directory named in cfg. An empty path opens an
// in-memory cache.
func Open(cfg *config.CacheConfig) (*Store, error) {
	if cfg.Path == "" {
		return OpenInMemory(cfg.TTL)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil                // Suppress BadgerDB internal logs
	opts.ValueLogFileSize = 16 << 20 // 16MB, entries are small JSON documents

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache %s: %w", cfg.Path, err)
	}
	return &Store{db: db, ttl: cfg.TTL, owned: true}, nil
}

// OpenInMemory opens a cache that lives only as long as the process.
func OpenInMemory(ttl time.Duration) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger cache: %w", err)
	}
	return &Store{db: db, ttl: ttl, owned: true}, nil
}

// New wraps an already open Badger database. Close does not close db.
func New(db *badger.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl}
}

// Close releases the database when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Get decodes the value stored under key into v. found is false for
// missing and expired keys.
func (s *Store) Get(key string, v interface{}) (found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	s.mu.Lock()
	if found {
		s.stats.Hits++
	} else {
		s.stats.Misses++
	}
	s.mu.Unlock()
	return found, nil
}

// Set stores v under key with the default TTL.
func (s *Store) Set(key string, v interface{}) error {
	return s.SetWithTTL(key, v, s.ttl)
}

// SetWithTTL stores v under key. A ttl of 0 never expires.
func (s *Store) SetWithTTL(key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	s.mu.Lock()
	s.stats.Writes++
	s.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Keys lists the keys under prefix in key order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// GetStats returns a copy of the cache statistics.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// HitRate returns the hit percentage (0-100).
func (s *Store) HitRate() float64 {
	stats := s.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// GenerateKey builds a stable key from a namespace and parameters. Strings
// are lowercased and trimmed so equivalent lookups share an entry.
func GenerateKey(namespace string, params ...string) string {
	norm := make([]string, len(params))
	for i, p := range params {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "\x00")))
	return fmt.Sprintf("%s:%x", namespace, sum[:12])
}
