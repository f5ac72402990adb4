package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBroadcastEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{}, nil, nil)

	report := b.Broadcast(context.Background(), "ghost", "hello")
	if report.Attempted != 0 || report.Delivered != 0 || len(report.Evicted) != 0 {
		t.Fatalf("unexpected report for empty room: %+v", report)
	}
}

func TestBroadcastIsolatesFailingMember(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			reg := NewRegistry()
			metrics := &countingMetrics{}
			b := NewBroadcaster(reg, BroadcastConfig{WriteTimeout: time.Second, Parallelism: parallelism}, nil, metrics)

			conns := make([]*fakeConn, 5)
			for i := range conns {
				conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
				reg.Join("lobby", &Member{Conn: conns[i], Username: fmt.Sprintf("u%d", i)})
			}
			broken := conns[2]
			broken.failSends(errors.New("broken pipe"))

			report := b.Broadcast(context.Background(), "lobby", `{"type":"system"}`)

			if report.Attempted != 5 || report.Delivered != 4 {
				t.Fatalf("unexpected report: %+v", report)
			}
			if len(report.Evicted) != 1 || report.Evicted[0].Conn != broken {
				t.Fatalf("expected broken member evicted, got %+v", report.Evicted)
			}
			for i, c := range conns {
				if c == broken {
					continue
				}
				if got := len(c.rawFrames()); got != 1 {
					t.Fatalf("conn %d received %d frames, want 1", i, got)
				}
			}
			if reg.MemberCount("lobby") != 4 {
				t.Fatalf("broken member still registered: %d members", reg.MemberCount("lobby"))
			}
			if _, ok := reg.RoomOf(broken.ID()); ok {
				t.Fatal("broken member still has a room")
			}
			if metrics.broadcasts != 1 || metrics.evicted != 1 {
				t.Fatalf("metrics not recorded: %+v", metrics)
			}
		})
	}
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{}, nil, nil)

	open := newFakeConn("open")
	closed := newFakeConn("closed")
	_ = closed.Close("gone")
	reg.Join("lobby", &Member{Conn: open, Username: "a"})
	reg.Join("lobby", &Member{Conn: closed, Username: "b"})

	report := b.Broadcast(context.Background(), "lobby", "x")

	if report.Delivered != 1 || len(report.Evicted) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if closed.sendCount() != 0 {
		t.Fatalf("closed connection should not be written to")
	}
	if reg.MemberCount("lobby") != 1 {
		t.Fatalf("closed member should be evicted")
	}
}

func TestBroadcastLastMemberEvictionPrunesRoom(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{}, nil, nil)

	c := newFakeConn("only")
	c.failSends(errors.New("reset"))
	reg.Join("solo", &Member{Conn: c, Username: "a"})

	b.Broadcast(context.Background(), "solo", "x")

	if reg.RoomCount() != 0 {
		t.Fatalf("room should be gone: %v", reg.Rooms())
	}
}

func TestBroadcastIgnoresCallerCancellation(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{WriteTimeout: time.Second}, nil, nil)

	c := &ctxConn{fakeConn: newFakeConn("a")}
	reg.Join("lobby", &Member{Conn: c, Username: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := b.Broadcast(ctx, "lobby", "x")
	if report.Delivered != 1 {
		t.Fatalf("cancelled caller context must not fail delivery: %+v", report)
	}
}

func TestSendReportsSendError(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{}, nil, nil)

	c := newFakeConn("a")
	cause := errors.New("boom")
	c.failSends(cause)

	err := b.Send(context.Background(), c, "x")
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.ConnID != "a" || !errors.Is(err, cause) {
		t.Fatalf("expected SendError wrapping cause, got %v", err)
	}

	_ = c.Close("bye")
	if err := b.Send(context.Background(), c, "x"); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

// ctxConn fails sends whose context is already done, like a real transport.
type ctxConn struct {
	*fakeConn
}

func (c *ctxConn) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeConn.Send(ctx, text)
}

// stallingConn blocks in Send until release is closed.
type stallingConn struct {
	*fakeConn
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *stallingConn) Send(ctx context.Context, text string) error {
	c.once.Do(func() { close(c.entered) })
	select {
	case <-c.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.fakeConn.Send(ctx, text)
}

func TestBroadcastStalledSendDoesNotBlockRegistry(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, BroadcastConfig{WriteTimeout: 5 * time.Second}, nil, nil)

	stalled := &stallingConn{
		fakeConn: newFakeConn("slow"),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	bob := &Member{Conn: newFakeConn("bob"), Username: "bob"}
	reg.Join("lobby", &Member{Conn: stalled, Username: "slow"})
	reg.Join("lobby", bob)

	reports := make(chan DeliveryReport, 1)
	go func() { reports <- b.Broadcast(context.Background(), "lobby", `{"type":"system"}`) }()

	select {
	case <-stalled.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never reached the stalled member")
	}

	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		reg.Join("lobby", &Member{Conn: newFakeConn("carol"), Username: "carol"})
		reg.Leave("lobby", bob)
		_ = reg.Snapshot("lobby")
		_ = reg.Usernames("lobby")
		_ = reg.MemberCount("lobby")
		_ = reg.Rooms()
	}()

	select {
	case <-registryDone:
	case <-time.After(2 * time.Second):
		t.Fatal("registry operations blocked behind a stalled send")
	}

	if got := reg.Usernames("lobby"); len(got) != 2 || got[0] != "slow" || got[1] != "carol" {
		t.Fatalf("unexpected roster while send is stalled: %v", got)
	}

	close(stalled.release)

	select {
	case report := <-reports:
		if report.Attempted != 2 || report.Delivered != 2 || len(report.Evicted) != 0 {
			t.Fatalf("unexpected report: %+v", report)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not finish after release")
	}
}
