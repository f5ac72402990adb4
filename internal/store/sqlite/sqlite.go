package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Schema creates the tables the relay needs. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	username   TEXT PRIMARY KEY,
	first_seen INTEGER NOT NULL,
	last_seen  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	room     TEXT NOT NULL,
	username TEXT NOT NULL,
	body     TEXT NOT NULL,
	sent_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

// New opens (or creates) the database at dbPath and applies Schema.
// historyLimit bounds LoadRecent; non-positive means store.DefaultHistoryLimit.
func New(dbPath string, historyLimit int) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, historyLimit, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, historyLimit int, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{
		db:    db,
		limit: store.LimitOrDefault(historyLimit),
		now:   time.Now,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== HistoryStore implementation ====

// Append persists one message.
func (s *SQLiteStore) Append(ctx context.Context, room, username, body string, sentAt int64) error {
	query := `
		INSERT INTO messages (room, username, body, sent_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, room, username, body, sentAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// LoadRecent returns the newest messages of a room, oldest first.
func (s *SQLiteStore) LoadRecent(ctx context.Context, room string) ([]store.Record, error) {
	query := `
		SELECT room, username, body, sent_at FROM (
			SELECT id, room, username, body, sent_at
			FROM messages
			WHERE room = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, room, s.limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	records := make([]store.Record, 0)
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.Room, &rec.Username, &rec.Body, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return records, nil
}

// ==== UserStore implementation ====

// RecordUser creates the user or refreshes last_seen.
func (s *SQLiteStore) RecordUser(ctx context.Context, username string) error {
	query := `
		INSERT INTO users (username, first_seen, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET last_seen = excluded.last_seen
	`
	now := s.now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, query, username, now, now); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a recorded user by name.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (store.User, error) {
	query := `
		SELECT username, first_seen, last_seen
		FROM users
		WHERE username = ?
	`
	var (
		user            store.User
		first, lastSeen int64
	)
	err := s.db.QueryRowContext(ctx, query, username).Scan(&user.Username, &first, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, fmt.Errorf("get user %q: %w", username, store.ErrUserNotFound)
		}
		return store.User{}, fmt.Errorf("query user: %w", err)
	}
	user.FirstSeen = time.UnixMilli(first)
	user.LastSeen = time.UnixMilli(lastSeen)

	return user, nil
}
