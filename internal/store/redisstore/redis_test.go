package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// newTestStore needs a live server; set RELAY_TEST_REDIS_ADDR to run these tests.
func newTestStore(t *testing.T, limit int) *Store {
	t.Helper()

	addr := os.Getenv("RELAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RELAY_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}

	prefix := "relay-test-" + uuid.NewString()
	s := NewWithClient(rdb, prefix, limit)
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
		_ = s.Close()
	})
	return s
}

func TestAppendTrimsToLimit(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := s.Append(ctx, "lobby", "alice", fmt.Sprintf("m%d", i), int64(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := s.LoadRecent(ctx, "lobby")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 || records[0].Body != "m3" || records[1].Body != "m4" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[1].SentAt != 4 || records[1].Room != "lobby" {
		t.Fatalf("unexpected record fields: %+v", records[1])
	}
}

func TestRecordUserKeepsFirstSeen(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	s.now = func() time.Time { return time.UnixMilli(10) }
	_ = s.RecordUser(ctx, "alice")
	s.now = func() time.Time { return time.UnixMilli(20) }
	_ = s.RecordUser(ctx, "alice")

	u, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.FirstSeen.UnixMilli() != 10 || u.LastSeen.UnixMilli() != 20 {
		t.Fatalf("unexpected timestamps: %+v", u)
	}

	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
