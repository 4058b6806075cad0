// Package queue is a per-user disk-backed retry queue. Work that cannot
// complete now (a desire awaiting approval, a notification the surface
// could not deliver) parks here and survives restarts; one consumer per
// user drains it with fixed-backoff retries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"volition/internal/logging"
)

// ErrConsumerActive is returned when a second consumer tries to drain a
// user's queue while another consumer holds it.
var ErrConsumerActive = errors.New("queue: user already has an active consumer")

// ErrNotFound is returned when an item id is absent from a user's queue.
var ErrNotFound = errors.New("queue: item not found")

// Item is one parked unit of work.
type Item struct {
	ID         string         `yaml:"id" json:"id"`
	Kind       string         `yaml:"kind" json:"kind"`
	Payload    map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Attempts   int            `yaml:"attempts" json:"attempts"`
	LastError  string         `yaml:"last_error,omitempty" json:"lastError,omitempty"`
	EnqueuedAt time.Time      `yaml:"enqueued_at" json:"enqueuedAt"`
	UpdatedAt  time.Time      `yaml:"updated_at" json:"updatedAt"`
}

// Handler processes one item. A nil return removes the item; an error
// keeps it at the head for another attempt after the backoff.
type Handler func(ctx context.Context, item Item) error

type userFile struct {
	Version int    `yaml:"version"`
	Items   []Item `yaml:"items"`
}

const fileVersion = 1

// RetryQueue holds per-user ordered pending lists, persisted to one YAML
// file per user under dir. State is written after every enqueue and after
// every successful dequeue, so a crash never loses an accepted item and
// never replays a completed one.
type RetryQueue struct {
	dir string
	log *slog.Logger

	mu        sync.Mutex
	items     map[string][]Item
	consumers map[string]bool
}

// Open loads the queue directory, reading any existing per-user files.
func Open(dir string) (*RetryQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	q := &RetryQueue{
		dir:       dir,
		log:       logging.New("queue"),
		items:     make(map[string][]Item),
		consumers: make(map[string]bool),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read queue dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		user := e.Name()[:len(e.Name())-len(".yaml")]
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read queue file for %s: %w", user, err)
		}
		var f userFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("corrupt queue file for %s: %w", user, err)
		}
		if len(f.Items) > 0 {
			q.items[user] = f.Items
		}
	}
	return q, nil
}

// Enqueue appends an item to the user's pending list and persists it.
// The returned item carries the assigned id and timestamps.
func (q *RetryQueue) Enqueue(user, kind string, payload map[string]any) (Item, error) {
	if user == "" {
		return Item{}, errors.New("queue: user required")
	}
	now := time.Now().UTC()
	item := Item{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[user] = append(q.items[user], item)
	if err := q.persistLocked(user); err != nil {
		// Roll back so memory and disk agree.
		q.items[user] = q.items[user][:len(q.items[user])-1]
		return Item{}, err
	}
	q.log.Debug("enqueued", "user", user, "kind", kind, "id", item.ID)
	return item, nil
}

// Items returns a snapshot of the user's pending list, oldest first.
func (q *RetryQueue) Items(user string) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items[user]))
	copy(out, q.items[user])
	return out
}

// Len reports how many items a user has pending.
func (q *RetryQueue) Len(user string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[user])
}

// Users lists users with pending items.
func (q *RetryQueue) Users() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	users := make([]string, 0, len(q.items))
	for u, list := range q.items {
		if len(list) > 0 {
			users = append(users, u)
		}
	}
	return users
}

// Remove deletes one item by id and persists, regardless of position.
// It serves the surfaces: an operator dismissing parked work by hand.
func (q *RetryQueue) Remove(user, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.items[user]
	for i, it := range list {
		if it.ID == id {
			q.items[user] = append(list[:i:i], list[i+1:]...)
			return q.persistLocked(user)
		}
	}
	return ErrNotFound
}

// Consume drains the user's queue in order until it is empty or ctx is
// cancelled. Exactly one consumer may drain a user at a time; a second
// call returns ErrConsumerActive immediately. A failing item stays at
// the head and is retried indefinitely at the fixed backoff; items
// behind it wait their turn.
func (q *RetryQueue) Consume(ctx context.Context, user string, backoff time.Duration, handle Handler) error {
	q.mu.Lock()
	if q.consumers[user] {
		q.mu.Unlock()
		return ErrConsumerActive
	}
	q.consumers[user] = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.consumers, user)
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if len(q.items[user]) == 0 {
			q.mu.Unlock()
			return nil
		}
		head := q.items[user][0]
		q.mu.Unlock()

		err := handle(ctx, head)
		if err == nil {
			q.mu.Lock()
			q.dropHeadLocked(user, head.ID)
			perr := q.persistLocked(user)
			q.mu.Unlock()
			if perr != nil {
				return perr
			}
			continue
		}

		// The failed attempt is recorded before any waiting, so a
		// cancellation or crash still leaves the attempt count on disk.
		q.mu.Lock()
		if list := q.items[user]; len(list) > 0 && list[0].ID == head.ID {
			list[0].Attempts++
			list[0].LastError = err.Error()
			list[0].UpdatedAt = time.Now().UTC()
			if perr := q.persistLocked(user); perr != nil {
				q.mu.Unlock()
				return perr
			}
		}
		q.mu.Unlock()

		q.log.Warn("item failed, backing off", "user", user, "id", head.ID, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// dropHeadLocked removes the head if it still matches id. The id check
// guards against a concurrent Remove of the same item.
func (q *RetryQueue) dropHeadLocked(user, id string) {
	list := q.items[user]
	if len(list) > 0 && list[0].ID == id {
		q.items[user] = list[1:]
	}
}

// persistLocked writes the user's list through a temp file and rename so
// a crash mid-write leaves either the old file or the new one, never a
// torn mix. Callers hold q.mu.
func (q *RetryQueue) persistLocked(user string) error {
	path := filepath.Join(q.dir, user+".yaml")
	list := q.items[user]
	if len(list) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove drained queue file: %w", err)
		}
		return nil
	}

	content, err := yaml.Marshal(userFile{Version: fileVersion, Items: list})
	if err != nil {
		return fmt.Errorf("marshal queue for %s: %w", user, err)
	}

	tmp, err := os.CreateTemp(q.dir, ".queue-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp queue file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp queue file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename queue file: %w", err)
	}
	return nil
}
