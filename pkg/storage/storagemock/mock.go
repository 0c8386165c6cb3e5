// Package storagemock provides an in-memory Database for tests.
package storagemock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tariffsaver/tariffsaver/pkg/storage"
)

// Mock is an in-memory storage.Database. SaveErr can be set to simulate a
// failing backend.
type Mock struct {
	mu      sync.Mutex
	docs    map[string][]byte
	SaveErr error
}

// New returns an empty mock database.
func New() *Mock {
	return &Mock{docs: make(map[string][]byte)}
}

func (m *Mock) LoadDocument(_ context.Context, instanceID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, instanceID)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (m *Mock) SaveDocument(_ context.Context, instanceID string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	m.docs[instanceID] = cp
	return nil
}

func (m *Mock) ListInstances(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Mock) Close() error {
	return nil
}

// Saves returns how many documents are currently stored.
func (m *Mock) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}
