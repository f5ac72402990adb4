package http

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// maxCloseReason is the largest close reason a control frame can carry.
const maxCloseReason = 123

// wsConn adapts a WebSocket to core.Conn.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex // one writer at a time
	open atomic.Bool
}

var _ core.Conn = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{id: uuid.NewString(), ws: ws}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string {
	return c.id
}

// Send writes one text frame. A failed write leaves the connection unusable.
func (c *wsConn) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open.Load() {
		return core.ErrConnClosed
	}
	if err := c.ws.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

func (c *wsConn) IsOpen() bool {
	return c.open.Load()
}

// Close is only used by the core to reject a handshake.
func (c *wsConn) Close(reason string) error {
	return c.closeWith(websocket.StatusPolicyViolation, reason)
}

// closeWith does not take the writer lock so a stalled Send cannot delay it.
func (c *wsConn) closeWith(status websocket.StatusCode, reason string) error {
	c.open.Store(false)
	return c.ws.Close(status, closeReason(reason))
}

// closeReason makes reason valid UTF-8 and cuts it to fit a close frame
// without splitting a rune.
func closeReason(reason string) string {
	reason = strings.ToValidUTF8(reason, "\uFFFD")
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

func (c *wsConn) markClosed() {
	c.open.Store(false)
}
