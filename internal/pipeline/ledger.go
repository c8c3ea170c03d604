// Chartpulse - Weekly Chart Trend Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chartpulse

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/chartpulse/internal/cache"
)

const (
	ledgerPrefix    = "run:"
	ledgerLatestKey = "ledger:latest"
)

// ErrRunNotFound is returned when the ledger has no matching run.
var ErrRunNotFound = errors.New("run not found")

// Ledger persists finished runs in a Badger store. Entries never expire.
type Ledger struct {
	store *cache.Store
}

// NewLedger creates a ledger on store.
func NewLedger(store *cache.Store) *Ledger {
	return &Ledger{store: store}
}

func ledgerKey(rc *RunContext) string {
	return fmt.Sprintf("%s%020d:%s", ledgerPrefix, rc.StartedAt.UnixNano(), rc.RunID)
}

// Save records rc and marks it as the latest run.
func (l *Ledger) Save(rc *RunContext) error {
	key := ledgerKey(rc)
	if err := l.store.SetWithTTL(key, rc, 0); err != nil {
		return fmt.Errorf("save run %s: %w", rc.RunID, err)
	}
	if err := l.store.SetWithTTL(ledgerLatestKey, key, 0); err != nil {
		return fmt.Errorf("save latest run pointer: %w", err)
	}
	return nil
}

// Latest returns the most recently saved run.
func (l *Ledger) Latest() (*RunContext, error) {
	var key string
	found, err := l.store.Get(ledgerLatestKey, &key)
	if err != nil {
		return nil, fmt.Errorf("read latest run pointer: %w", err)
	}
	if !found {
		return nil, ErrRunNotFound
	}
	return l.get(key)
}

// Get returns the run with id.
func (l *Ledger) Get(id string) (*RunContext, error) {
	keys, err := l.store.Keys(ledgerPrefix)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := len(keys) - 1; i >= 0; i-- {
		if strings.HasSuffix(keys[i], ":"+id) {
			return l.get(keys[i])
		}
	}
	return nil, ErrRunNotFound
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (l *Ledger) List(limit int) ([]*RunContext, error) {
	keys, err := l.store.Keys(ledgerPrefix)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var out []*RunContext
	for i := len(keys) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		rc, err := l.get(keys[i])
		if errors.Is(err, ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

func (l *Ledger) get(key string) (*RunContext, error) {
	var rc RunContext
	found, err := l.store.Get(key, &rc)
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", key, err)
	}
	if !found {
		return nil, ErrRunNotFound
	}
	return &rc, nil
}
