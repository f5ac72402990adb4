// Package redisstore keeps recent history in capped Redis lists.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const defaultPrefix = "wirechat-relay"

// Store implements store.Store on top of Redis.
//
// Each room is a list trimmed to the history limit; users live in one hash
// mapping username to first-seen millis plus a last-seen hash.
type Store struct {
	rdb    *redis.Client
	limit  int
	prefix string
	now    func() time.Time
}

type entry struct {
	User   string `json:"user"`
	Body   string `json:"body"`
	SentAt int64  `json:"sent_at"`
}

// New connects to addr and verifies connectivity.
func New(ctx context.Context, addr string, db, historyLimit int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(rdb, defaultPrefix, historyLimit), nil
}

// NewWithClient wraps an existing client; prefix namespaces every key.
func NewWithClient(rdb *redis.Client, prefix string, historyLimit int) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		rdb:    rdb,
		limit:  store.LimitOrDefault(historyLimit),
		prefix: prefix,
		now:    time.Now,
	}
}

// Append pushes the message and trims the room list in one pipeline.
func (s *Store) Append(ctx context.Context, room, username, body string, sentAt int64) error {
	raw, err := json.Marshal(entry{User: username, Body: body, SentAt: sentAt})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := s.historyKey(room)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		p.LTrim(ctx, key, int64(-s.limit), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// LoadRecent reads the room list, oldest first.
func (s *Store) LoadRecent(ctx context.Context, room string) ([]store.Record, error) {
	raws, err := s.rdb.LRange(ctx, s.historyKey(room), int64(-s.limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	records := make([]store.Record, 0, len(raws))
	for _, raw := range raws {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		records = append(records, store.Record{
			Room:     room,
			Username: e.User,
			Body:     e.Body,
			SentAt:   e.SentAt,
		})
	}
	return records, nil
}

// RecordUser sets first-seen once and always refreshes last-seen.
func (s *Store) RecordUser(ctx context.Context, username string) error {
	now := s.now().UnixMilli()
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, s.key("users:first_seen"), username, now)
		p.HSet(ctx, s.key("users:last_seen"), username, now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record user: %w", err)
	}
	return nil
}

// GetUser reads back a recorded user.
func (s *Store) GetUser(ctx context.Context, username string) (store.User, error) {
	first, err := s.rdb.HGet(ctx, s.key("users:first_seen"), username).Int64()
	if errors.Is(err, redis.Nil) {
		return store.User{}, fmt.Errorf("get user %q: %w", username, store.ErrUserNotFound)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("read user: %w", err)
	}
	last, err := s.rdb.HGet(ctx, s.key("users:last_seen"), username).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return store.User{}, fmt.Errorf("read user: %w", err)
	}
	return store.User{
		Username:  username,
		FirstSeen: time.UnixMilli(first),
		LastSeen:  time.UnixMilli(last),
	}, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) historyKey(room string) string {
	return s.key("history:" + room)
}

func (s *Store) key(suffix string) string {
	return s.prefix + ":" + suffix
}
