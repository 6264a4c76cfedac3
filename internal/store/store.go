// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists service configuration between bridge runs.
package store

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/Thermoquad/rcsbridge/pkg/bus"
)

// Store is a bus.ConfigStore holding resources that must be released
type Store interface {
	bus.ConfigStore
	Close() error
}

// Open returns the store for path. An empty path keeps configuration in
// memory only, a .db or .sqlite path selects SQLite, anything else YAML.
// Values are kept per service ID so several bridges can share a file.
func Open(path, service string) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path, service)
	default:
		return NewYAMLStore(path, service), nil
	}
}

// MemoryStore is a Store that forgets everything on exit
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyValues(m.values), nil
}

func (m *MemoryStore) Save(values map[string]string) error {
	m.mu.Lock()
	m.values = copyValues(values)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
