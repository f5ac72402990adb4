package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"net/url"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const rateLimitNotice = "rate limit exceeded, message dropped"

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	hub               *core.Hub
	log               *zerolog.Logger
	acceptOptions     *websocket.AcceptOptions
	readLimit         int64
	writeTimeout      time.Duration
	pingInterval      time.Duration
	messagesPerMinute int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) *WSHandler {
	opts := &websocket.AcceptOptions{}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = originPatterns(cfg.AllowedOrigins)
	}

	return &WSHandler{
		hub:               hub,
		log:               logger,
		acceptOptions:     opts,
		readLimit:         cfg.MaxMessageBytes,
		writeTimeout:      cfg.WriteTimeout,
		pingInterval:      cfg.PingInterval,
		messagesPerMinute: cfg.MessagesPerMinute,
	}
}

// originPatterns turns CORS origins ("https://app.example") into the host
// patterns the WebSocket accept check matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, origin)
	}
	return out
}

// ServePath handles the handshake with the identity in the path.
// GET /chat/:username/:room
func (h *WSHandler) ServePath(c *gin.Context) {
	h.serve(c.Writer, c.Request, c.Param("username"), c.Param("room"))
}

// ServeQuery handles the handshake with the identity in the query string.
// GET /chat?username=...&room=...
func (h *WSHandler) ServeQuery(c *gin.Context) {
	h.serve(c.Writer, c.Request, c.Query("username"), c.Query("room"))
}

func (h *WSHandler) serve(w stdhttp.ResponseWriter, r *stdhttp.Request, username, room string) {
	ws, err := websocket.Accept(w, r, h.acceptOptions)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	conn := newWSConn(ws)
	defer func() { _ = conn.closeWith(websocket.StatusInternalError, "internal error") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := h.hub.NewSession(conn)
	if err := session.Open(ctx, username, room); err != nil {
		h.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("handshake rejected")
		return
	}

	limiter := newRateLimiter(h.messagesPerMinute, time.Minute)
	limiter.startReset(ctx.Done())

	if h.pingInterval > 0 {
		go h.pingLoop(ctx, cancel, conn)
	}

	err = h.readLoop(ctx, conn, session, limiter)
	conn.markClosed()
	cancel()

	status, reason, err := h.closeStatus(r.Context(), err)
	if err != nil {
		session.Error(err)
	}
	session.Close(context.WithoutCancel(r.Context()))

	_ = conn.closeWith(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *wsConn, session *core.Session, limiter *rateLimiter) error {
	for {
		typ, data, err := conn.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		if !limiter.allow() {
			h.log.Debug().Str("conn_id", conn.ID()).Str("user", session.Username()).Msg("message rate limited")
			if err := h.notify(ctx, conn, proto.System(rateLimitNotice)); err != nil {
				return err
			}
			continue
		}

		session.Message(ctx, string(data))
	}
}

func (h *WSHandler) notify(ctx context.Context, conn *wsConn, frame string) error {
	if h.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
	}
	return conn.Send(ctx, frame)
}

func (h *WSHandler) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *wsConn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, h.pingInterval)
			err := conn.ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() == nil {
					h.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("ping failed")
				}
				conn.markClosed()
				cancel()
				return
			}
		}
	}
}

// closeStatus maps a read loop error to the close frame to send and the
// error worth reporting, if any.
func (h *WSHandler) closeStatus(reqCtx context.Context, err error) (websocket.StatusCode, string, error) {
	if err == nil || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing", nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if reqCtx.Err() != nil {
			return websocket.StatusGoingAway, "server shutting down", nil
		}
		return websocket.StatusNormalClosure, "closing", nil
	}

	switch status := websocket.CloseStatus(err); status {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return websocket.StatusNormalClosure, "closing", nil
	case -1:
		h.log.Warn().Err(err).Msg("ws connection closed with error")
		return websocket.StatusInternalError, err.Error(), err
	default:
		h.log.Warn().Err(err).Int("status", int(status)).Msg("ws connection closed with error")
		return status, "closing", err
	}
}
