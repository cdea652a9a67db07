// Package state persists the client-side conversation metadata the relay
// doesn't track: read markers, done markers, bucket assignments, and the
// last applied fingerprint per conversation.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// BucketOpen and BucketDone always exist; AddBucket creates more.
const (
	BucketOpen = "open"
	BucketDone = "done"
)

// Store is the SQLite-backed local state database.
// WAL mode, single writer connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the state database at path, applying pragmas and
// the schema. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect state db: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// MarkRead records chatID as read. Idempotent.
func (s *Store) MarkRead(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO read_chats (chat_id, marked_at) VALUES (?, ?)`,
		chatID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mark read %s: %w", chatID, err)
	}
	return nil
}

// ReadSet returns the chat ids marked read.
func (s *Store) ReadSet(ctx context.Context) (map[string]bool, error) {
	return s.idSet(ctx, `SELECT chat_id FROM read_chats`)
}

// ToggleDone flips chatID's done marker and returns the new value.
func (s *Store) ToggleDone(ctx context.Context, chatID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM done_chats WHERE chat_id = ?)`, chatID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("toggle done %s: %w", chatID, err)
	}
	if exists {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM done_chats WHERE chat_id = ?`, chatID); err != nil {
			return false, fmt.Errorf("toggle done %s: %w", chatID, err)
		}
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO done_chats (chat_id, marked_at) VALUES (?, ?)`,
		chatID, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return false, fmt.Errorf("toggle done %s: %w", chatID, err)
	}
	return true, nil
}

// DoneSet returns the chat ids marked done.
func (s *Store) DoneSet(ctx context.Context) (map[string]bool, error) {
	return s.idSet(ctx, `SELECT chat_id FROM done_chats`)
}

// Buckets returns bucket names in display order.
func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM buckets ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list buckets: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AddBucket creates a bucket after the existing ones. Idempotent.
func (s *Store) AddBucket(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("add bucket: empty name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO buckets (name, position)
		 SELECT ?, COALESCE(MAX(position), 0) + 1 FROM buckets`, name)
	if err != nil {
		return fmt.Errorf("add bucket %s: %w", name, err)
	}
	return nil
}

// AssignBucket moves chatID into the named bucket. Assigning to
// BucketOpen removes the row - open is the implicit default.
func (s *Store) AssignBucket(ctx context.Context, chatID, bucket string) error {
	if bucket == BucketOpen {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM bucket_assignments WHERE chat_id = ?`, chatID); err != nil {
			return fmt.Errorf("assign bucket %s: %w", chatID, err)
		}
		return nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM buckets WHERE name = ?)`, bucket).Scan(&exists)
	if err != nil {
		return fmt.Errorf("assign bucket %s: %w", chatID, err)
	}
	if !exists {
		return fmt.Errorf("assign bucket %s: no bucket %q", chatID, bucket)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bucket_assignments (chat_id, bucket) VALUES (?, ?)`,
		chatID, bucket); err != nil {
		return fmt.Errorf("assign bucket %s: %w", chatID, err)
	}
	return nil
}

// Assignments returns the explicit chat-to-bucket map. Conversations
// absent from the map are in BucketOpen.
func (s *Store) Assignments(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, bucket FROM bucket_assignments`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var chatID, bucket string
		if err := rows.Scan(&chatID, &bucket); err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		out[chatID] = bucket
	}
	return out, rows.Err()
}

// SetFingerprint records the fingerprint last applied for chatID.
func (s *Store) SetFingerprint(ctx context.Context, chatID, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO fingerprints (chat_id, fingerprint, updated_at) VALUES (?, ?, ?)`,
		chatID, fingerprint, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set fingerprint %s: %w", chatID, err)
	}
	return nil
}

// Fingerprints returns all persisted fingerprints keyed by chat id.
func (s *Store) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, fingerprint FROM fingerprints`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var chatID, fp string
		if err := rows.Scan(&chatID, &fp); err != nil {
			return nil, fmt.Errorf("list fingerprints: %w", err)
		}
		out[chatID] = fp
	}
	return out, rows.Err()
}

func (s *Store) idSet(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query id set: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("query id set: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
