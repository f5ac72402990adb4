package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run joins two users to one room, relays a message and checks both the
// broadcast and the departure announcement.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080", "relay base address")
	room := flag.String("room", "smoke", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dial := func(user string) (*websocket.Conn, error) {
		target := strings.TrimRight(*addr, "/") + "/chat/" + url.PathEscape(user) + "/" + url.PathEscape(*room)
		conn, _, err := websocket.Dial(ctx, target, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", user, err)
		}
		return conn, nil
	}

	first, err := dial("smoke-a")
	if err != nil {
		return err
	}
	defer first.CloseNow()

	if _, err := await(ctx, first, proto.TypeUsers, ""); err != nil {
		return err
	}

	second, err := dial("smoke-b")
	if err != nil {
		return err
	}
	defer second.CloseNow()

	if _, err := await(ctx, first, proto.TypeJoin, "smoke-b"); err != nil {
		return err
	}
	if err := first.Write(ctx, websocket.MessageText, []byte(*text)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	got, err := await(ctx, second, proto.TypeMessage, "smoke-a")
	if err != nil {
		return err
	}
	if got.Message != *text {
		return fmt.Errorf("relayed %q, want %q", got.Message, *text)
	}
	log.Printf("message relayed: %s", got.Message)

	_ = second.Close(websocket.StatusNormalClosure, "bye")
	if _, err := await(ctx, first, proto.TypeLeave, "smoke-b"); err != nil {
		return err
	}
	log.Printf("departure announced")

	_ = first.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// await reads until a frame of typ arrives, from user when user is set.
func await(ctx context.Context, conn *websocket.Conn, typ, user string) (proto.Frame, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return proto.Frame{}, fmt.Errorf("waiting for %s: %w", typ, err)
		}
		f, err := proto.ParseFrame(data)
		if err != nil {
			return proto.Frame{}, err
		}
		if f.Type == typ && (user == "" || f.User == user) {
			return f, nil
		}
	}
}
