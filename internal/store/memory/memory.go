// Package memory keeps history and users in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Store implements store.Store without any external dependency.
type Store struct {
	mu      sync.RWMutex
	limit   int
	history map[string][]store.Record
	users   map[string]*store.User
	now     func() time.Time
}

// New builds an empty store keeping at most limit messages per room.
func New(limit int) *Store {
	return &Store{
		limit:   store.LimitOrDefault(limit),
		history: make(map[string][]store.Record),
		users:   make(map[string]*store.User),
		now:     time.Now,
	}
}

// Append keeps the message, dropping the oldest once the room is over its limit.
func (s *Store) Append(_ context.Context, room, username, body string, sentAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.history[room], store.Record{
		Room:     room,
		Username: username,
		Body:     body,
		SentAt:   sentAt,
	})
	if len(records) > s.limit {
		records = records[len(records)-s.limit:]
	}
	s.history[room] = records
	return nil
}

// LoadRecent returns a copy of the room's retained messages, oldest first.
func (s *Store) LoadRecent(_ context.Context, room string) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[room]
	out := make([]store.Record, len(records))
	copy(out, records)
	return out, nil
}

// RecordUser upserts the user.
func (s *Store) RecordUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if u, ok := s.users[username]; ok {
		u.LastSeen = now
		return nil
	}
	s.users[username] = &store.User{Username: username, FirstSeen: now, LastSeen: now}
	return nil
}

// GetUser returns a recorded user.
func (s *Store) GetUser(_ context.Context, username string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return store.User{}, fmt.Errorf("get user %q: %w", username, store.ErrUserNotFound)
	}
	return *u, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
