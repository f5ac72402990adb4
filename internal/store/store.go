package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned by GetUser for a username never recorded.
var ErrUserNotFound = errors.New("user not found")

// DefaultHistoryLimit bounds LoadRecent when a driver is built with a non-positive limit.
const DefaultHistoryLimit = 50

// Record is a persisted chat message.
type Record struct {
	Room     string
	Username string
	Body     string
	SentAt   int64 // unix milliseconds
}

// Time returns SentAt as a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.SentAt)
}

// User is a username the relay has seen at least once.
type User struct {
	Username  string
	FirstSeen time.Time
	LastSeen  time.Time
}

// HistoryStore handles message persistence.
type HistoryStore interface {
	// Append persists one message.
	Append(ctx context.Context, room, username, body string, sentAt int64) error

	// LoadRecent returns the most recent messages of a room, oldest first.
	// An unknown room yields an empty slice.
	LoadRecent(ctx context.Context, room string) ([]Record, error)
}

// UserStore handles user persistence.
type UserStore interface {
	// RecordUser creates the user on first sight and refreshes LastSeen afterwards.
	RecordUser(ctx context.Context, username string) error

	// GetUser returns a recorded user or an error wrapping ErrUserNotFound.
	GetUser(ctx context.Context, username string) (User, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	HistoryStore
	UserStore

	// Close closes the underlying connection.
	Close() error
}

// LimitOrDefault normalizes a configured history limit.
func LimitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
