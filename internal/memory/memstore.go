package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and ephemeral runs.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record // composite key user|category|key
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func composite(user, category, key string) string {
	return user + "|" + category + "|" + key
}

// Put implements Store.
func (m *MemStore) Put(ctx context.Context, user, category, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[composite(user, category, key)] = Record{
		User:      user,
		Category:  category,
		Key:       key,
		Value:     append([]byte(nil), value...),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// Get implements Store.
func (m *MemStore) Get(ctx context.Context, user, category, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[composite(user, category, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, user, category, key)
	}
	return &r, nil
}

// List implements Store, newest first.
func (m *MemStore) List(ctx context.Context, user, category string) ([]Record, error) {
	return m.collect(user, category, func(Record) bool { return true }, 0)
}

// Search implements Store with substring matching.
func (m *MemStore) Search(ctx context.Context, user, category, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.collect(user, category, func(r Record) bool {
		return strings.Contains(string(r.Value), query)
	}, limit)
}

// Delete implements Store.
func (m *MemStore) Delete(ctx context.Context, user, category, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := composite(user, category, key)
	if _, ok := m.records[k]; !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, user, category, key)
	}
	delete(m.records, k)
	return nil
}

// collect filters the user's records newest first. An empty category
// spans all categories.
func (m *MemStore) collect(user, category string, keep func(Record) bool, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.User != user || (category != "" && r.Category != category) {
			continue
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
