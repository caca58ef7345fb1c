// Package store provides Backend implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/order-engine/engine"
)

// =============================================================================
// MEMORY BACKEND - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	tables map[string]*engine.Table
	writes map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]*engine.Table),
		writes: make(map[string]int),
	}
}

// Read returns a copy of the named table.
func (m *Memory) Read(_ context.Context, name string) (*engine.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, engine.ErrTableNotExist
	}
	return t.Clone(), nil
}

// Write stores a copy of t under name, replacing what was there.
func (m *Memory) Write(_ context.Context, name string, t *engine.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[name] = t.Clone()
	m.writes[name]++
	return nil
}

// Put seeds a table without counting it as a write.
func (m *Memory) Put(name string, t *engine.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = t.Clone()
}

// Writes returns how many times name has been written.
func (m *Memory) Writes(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes[name]
}

// Names lists stored tables, sorted.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.tables))
	for n := range m.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
