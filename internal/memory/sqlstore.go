package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default relative path for the SQLite DB.
const DefaultDBPath = ".volition/memory.db"

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and applies the schema.
// Creates the parent directory (e.g. .volition) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS records (
	user       TEXT NOT NULL,
	category   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (user, category, key)
);
CREATE INDEX IF NOT EXISTS idx_records_user_category ON records(user, category);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SqlStore) Close() error { return s.db.Close() }

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// Put implements Store.
func (s *SqlStore) Put(ctx context.Context, user, category, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO records (user, category, key, value, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user, category, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		user, category, key, string(value), nowUTC())
	if err != nil {
		return fmt.Errorf("put record %s/%s/%s: %w", user, category, key, err)
	}
	return nil
}

// Get implements Store.
func (s *SqlStore) Get(ctx context.Context, user, category, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM records WHERE user=? AND category=? AND key=?`,
		user, category, key)
	var value, updated string
	if err := row.Scan(&value, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, user, category, key)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return makeRecord(user, category, key, value, updated), nil
}

// List implements Store, newest first. An empty category spans all
// categories.
func (s *SqlStore) List(ctx context.Context, user, category string) ([]Record, error) {
	q := `SELECT category, key, value, updated_at FROM records WHERE user=?`
	args := []any{user}
	if category != "" {
		q += ` AND category=?`
		args = append(args, category)
	}
	q += ` ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, user)
}

// Search implements Store with a substring match over values. An empty
// category spans all categories.
func (s *SqlStore) Search(ctx context.Context, user, category, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT category, key, value, updated_at FROM records WHERE user=? AND value LIKE ?`
	args := []any{user, "%" + query + "%"}
	if category != "" {
		q += ` AND category=?`
		args = append(args, category)
	}
	q += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, user)
}

// Delete implements Store.
func (s *SqlStore) Delete(ctx context.Context, user, category, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE user=? AND category=? AND key=?`, user, category, key)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, user, category, key)
	}
	return nil
}

func scanRecords(rows *sql.Rows, user string) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var category, key, value, updated string
		if err := rows.Scan(&category, &key, &value, &updated); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *makeRecord(user, category, key, value, updated))
	}
	return out, rows.Err()
}

func makeRecord(user, category, key, value, updated string) *Record {
	t, _ := time.Parse(time.RFC3339, updated)
	return &Record{
		User:      user,
		Category:  category,
		Key:       key,
		Value:     []byte(value),
		UpdatedAt: t,
	}
}
