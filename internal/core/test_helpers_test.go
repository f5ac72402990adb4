package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// fakeConn records frames in memory. Send fails once closed or when sendErr is set.
type fakeConn struct {
	id string

	mu          sync.Mutex
	frames      []string
	closed      bool
	closeReason string
	sendErr     error
	sends       int
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	if c.closed {
		return ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, text)
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
	return nil
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

// take returns and clears the recorded frames, decoded.
func (c *fakeConn) take(t *testing.T) []map[string]any {
	t.Helper()

	c.mu.Lock()
	raw := c.frames
	c.frames = nil
	c.mu.Unlock()

	out := make([]map[string]any, 0, len(raw))
	for _, f := range raw {
		var m map[string]any
		if err := json.Unmarshal([]byte(f), &m); err != nil {
			t.Fatalf("frame is not JSON: %v: %s", err, f)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) rawFrames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	copy(out, c.frames)
	return out
}

func ofType(frames []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func mustFrame(t *testing.T, frames []map[string]any, typ string) map[string]any {
	t.Helper()

	matched := ofType(frames, typ)
	if len(matched) == 0 {
		t.Fatalf("expected a %q frame, got %v", typ, frames)
	}
	return matched[len(matched)-1]
}

func newTestHub(t *testing.T, cfg HubConfig) *Hub {
	t.Helper()

	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{WriteTimeout: time.Second}, nil, cfg.Metrics)
	h := NewHub(reg, b, cfg)
	h.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return h
}

func openSession(t *testing.T, h *Hub, id, username, room string) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn(id)
	s := h.NewSession(conn)
	if err := s.Open(context.Background(), username, room); err != nil {
		t.Fatalf("open %s: %v", username, err)
	}
	return s, conn
}

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Append(context.Context, string, string, string, int64) error { return errStoreDown }
func (failingStore) LoadRecent(context.Context, string) ([]store.Record, error) {
	return nil, errStoreDown
}
func (failingStore) RecordUser(context.Context, string) error { return errStoreDown }
func (failingStore) GetUser(context.Context, string) (store.User, error) {
	return store.User{}, errStoreDown
}

type countingMetrics struct {
	mu         sync.Mutex
	opened     int
	closed     int
	rejected   int
	broadcasts int
	evicted    int
	persist    map[string]int
}

func (m *countingMetrics) SessionOpened()     { m.mu.Lock(); m.opened++; m.mu.Unlock() }
func (m *countingMetrics) SessionClosed()     { m.mu.Lock(); m.closed++; m.mu.Unlock() }
func (m *countingMetrics) HandshakeRejected() { m.mu.Lock(); m.rejected++; m.mu.Unlock() }
func (m *countingMetrics) Broadcast(r DeliveryReport) {
	m.mu.Lock()
	m.broadcasts++
	m.evicted += len(r.Evicted)
	m.mu.Unlock()
}
func (m *countingMetrics) PersistFailed(op string) {
	m.mu.Lock()
	if m.persist == nil {
		m.persist = make(map[string]int)
	}
	m.persist[op]++
	m.mu.Unlock()
}
