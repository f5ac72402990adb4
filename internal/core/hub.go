package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	relaylog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// HubConfig carries the hub's collaborators. Nil stores disable persistence.
type HubConfig struct {
	History        store.HistoryStore
	Users          store.UserStore
	Logger         *zerolog.Logger
	Metrics        Metrics
	PersistTimeout time.Duration
}

// Hub creates sessions and holds what they share: the registry, the
// broadcaster and the persistence collaborators.
type Hub struct {
	registry       *Registry
	broadcaster    *Broadcaster
	history        store.HistoryStore
	users          store.UserStore
	log            *zerolog.Logger
	metrics        Metrics
	persistTimeout time.Duration
	now            func() time.Time
}

// NewHub creates a new chat hub instance.
func NewHub(registry *Registry, broadcaster *Broadcaster, cfg HubConfig) *Hub {
	return &Hub{
		registry:       registry,
		broadcaster:    broadcaster,
		history:        cfg.History,
		users:          cfg.Users,
		log:            relaylog.OrNop(cfg.Logger),
		metrics:        metricsOrNop(cfg.Metrics),
		persistTimeout: cfg.PersistTimeout,
		now:            time.Now,
	}
}

// Registry exposes the shared room registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// NewSession starts the lifecycle of conn in the connecting state.
func (h *Hub) NewSession(conn Conn) *Session {
	return &Session{
		hub:   h,
		conn:  conn,
		log:   h.log.With().Str("conn_id", conn.ID()).Logger(),
		state: StateConnecting,
	}
}

func (h *Hub) broadcastRoster(ctx context.Context, room string) {
	names := h.registry.Usernames(room)
	if len(names) == 0 {
		return
	}
	h.broadcaster.Broadcast(ctx, room, proto.Users(names))
}

func (h *Hub) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if h.persistTimeout > 0 {
		return context.WithTimeout(ctx, h.persistTimeout)
	}
	return context.WithCancel(ctx)
}

func (h *Hub) persistFailed(log *zerolog.Logger, op string, err error) {
	perr := &PersistenceError{Op: op, Err: err}
	h.metrics.PersistFailed(op)
	log.Warn().Err(perr).Msg("persistence failed")
}

func (h *Hub) recordUser(ctx context.Context, log *zerolog.Logger, username string) {
	if h.users == nil {
		return
	}
	ctx, cancel := h.persistContext(ctx)
	defer cancel()
	if err := h.users.RecordUser(ctx, username); err != nil {
		h.persistFailed(log, "record_user", err)
	}
}

func (h *Hub) appendHistory(ctx context.Context, log *zerolog.Logger, room, username, body string, sentAt int64) {
	if h.history == nil {
		return
	}
	ctx, cancel := h.persistContext(ctx)
	defer cancel()
	if err := h.history.Append(ctx, room, username, body, sentAt); err != nil {
		h.persistFailed(log, "append", err)
	}
}

func (h *Hub) loadHistory(ctx context.Context, log *zerolog.Logger, room string) []store.Record {
	if h.history == nil {
		return nil
	}
	ctx, cancel := h.persistContext(ctx)
	defer cancel()
	records, err := h.history.LoadRecent(ctx, room)
	if err != nil {
		h.persistFailed(log, "load_recent", err)
		return nil
	}
	return records
}
