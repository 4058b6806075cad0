// Package memory is the user-scoped record store behind the runtime:
// desires, tasks, and free-form memories keyed by user and category. The
// engine treats it as an opaque async key/record store; implementations
// are SQLite, in-memory, and an RPC client over a message substrate.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("memory: record not found")

// Record is one stored entry. Value is JSON.
type Record struct {
	User      string    `json:"user"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the persistence facade. All operations are scoped to one
// user's profile; categories partition records within a user. List and
// Search treat an empty category as "all categories".
type Store interface {
	Put(ctx context.Context, user, category, key string, value []byte) error
	Get(ctx context.Context, user, category, key string) (*Record, error)
	List(ctx context.Context, user, category string) ([]Record, error)
	Search(ctx context.Context, user, category, query string, limit int) ([]Record, error)
	Delete(ctx context.Context, user, category, key string) error
}
