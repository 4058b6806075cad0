package desire

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"volition/internal/memory"
)

// desireCategory is the memory-store category desires persist under.
const desireCategory = "desires"

// Store persists desires per user across pipeline passes.
type Store interface {
	Save(ctx context.Context, d *Desire) error
	Get(ctx context.Context, user, id string) (*Desire, error)
	List(ctx context.Context, user string) ([]*Desire, error)
}

// MemoryStore implements Store over the user-scoped record store.
type MemoryStore struct {
	Backing memory.Store
}

// NewStore wraps a record store.
func NewStore(backing memory.Store) *MemoryStore {
	return &MemoryStore{Backing: backing}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, d *Desire) error {
	if d.ID == "" || d.User == "" {
		return fmt.Errorf("desire needs id and user to persist (id=%q user=%q)", d.ID, d.User)
	}
	return memory.PutJSON(ctx, s.Backing, d.User, desireCategory, d.ID, d)
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, user, id string) (*Desire, error) {
	var d Desire
	if err := memory.GetJSON(ctx, s.Backing, user, desireCategory, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// List implements Store, strongest first.
func (s *MemoryStore) List(ctx context.Context, user string) ([]*Desire, error) {
	records, err := s.Backing.List(ctx, user, desireCategory)
	if err != nil {
		return nil, err
	}
	out := make([]*Desire, 0, len(records))
	for _, rec := range records {
		var d Desire
		if err := json.Unmarshal(rec.Value, &d); err != nil {
			return nil, fmt.Errorf("corrupt desire record %s/%s: %w", user, rec.Key, err)
		}
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	return out, nil
}
