package directory

import (
	"context"
	"maps"
	"sync"
)

type memoryEntry struct {
	values  map[string]string
	version int64
}

// Memory is an in-process Store for tests and single-instance deployments.
// Durable deployments should use the SQLite-backed store instead; a
// process-local map does not survive multi-instance rollouts.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// GetPrefs returns a copy of the stored prefs for a user.
func (m *Memory) GetPrefs(_ context.Context, userID string) (Prefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[userID]
	if !ok {
		return Prefs{}, ErrNotFound
	}
	return Prefs{Values: maps.Clone(entry.values), Version: entry.version}, nil
}

// SetPrefs writes the full map back, conditioned on the version read.
func (m *Memory) SetPrefs(_ context.Context, userID string, values map[string]string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[userID]
	current := int64(0)
	if ok {
		current = entry.version
	}
	if current != expectedVersion {
		return ErrVersionConflict
	}
	m.entries[userID] = memoryEntry{values: maps.Clone(values), version: current + 1}
	return nil
}
