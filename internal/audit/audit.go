// Package audit records runtime events for after-the-fact review. The
// sink is fire-and-forget: recording never blocks or fails the operation
// that triggered it.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"volition/internal/logging"
)

// DefaultMaxLogSize is the rotation threshold for the JSONL file (32MB).
const DefaultMaxLogSize = 32 * 1024 * 1024

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Event     string         `json:"event"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink accepts audit entries. Implementations must swallow their own
// failures; Record has no error return on purpose.
type Sink interface {
	Record(e Entry)
}

// Discard is a Sink that drops everything. Useful default for tests.
type Discard struct{}

func (Discard) Record(Entry) {}

// JSONL appends entries to a newline-delimited JSON file, rotating the
// file aside once it passes maxSize.
type JSONL struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	size    int64
	file    *os.File
	log     *slog.Logger
}

// NewJSONL opens (or creates) the audit log at path.
func NewJSONL(path string, maxSize int64) (*JSONL, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat audit log: %w", err)
	}
	return &JSONL{
		path:    path,
		maxSize: maxSize,
		size:    info.Size(),
		file:    f,
		log:     logging.New("audit"),
	}, nil
}

// Record implements Sink. Failures are logged and dropped.
func (j *JSONL) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		j.log.Warn("drop unmarshalable audit entry", "event", e.Event, "err", err)
		return
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.size+int64(len(line)) > j.maxSize {
		if err := j.rotate(); err != nil {
			j.log.Warn("audit rotation failed", "err", err)
		}
	}

	n, err := j.file.Write(line)
	if err != nil {
		j.log.Warn("audit write failed", "event", e.Event, "err", err)
		return
	}
	j.size += int64(n)
}

// rotate moves the current file aside with a timestamp suffix and starts
// a fresh one. Caller holds the lock.
func (j *JSONL) rotate() error {
	if err := j.file.Close(); err != nil {
		return err
	}
	archived := fmt.Sprintf("%s.%s", j.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(j.path, archived); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.size = 0
	return nil
}

// Close flushes and closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
