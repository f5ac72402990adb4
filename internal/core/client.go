package core

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	// StateConnecting is the state before a successful Open.
	StateConnecting SessionState = iota
	// StateActive means the member is registered and its messages are relayed.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection through connecting, active and closed.
//
// The transport calls Open once, Message for every inbound text frame, Error
// when the link reports a failure and Close when it ends. Calls are
// serialized per session.
type Session struct {
	hub  *Hub
	conn Conn

	mu     sync.Mutex
	log    zerolog.Logger
	state  SessionState
	member *Member
	room   string
}

// Open registers the connection as username in room and announces it.
//
// A missing username or room closes the connection and returns an error
// wrapping ErrInvalidHandshake; nothing is registered in that case. Invalid
// UTF-8 in either name is replaced with U+FFFD. Store failures are logged and
// never stop the join.
func (s *Session) Open(ctx context.Context, username, room string) error {
	h := s.hub

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return ErrSessionClosed
	}

	username = strings.ToValidUTF8(username, "\uFFFD")
	room = strings.ToValidUTF8(room, "\uFFFD")

	if username == "" || room == "" {
		err := invalidHandshake(username, room)
		s.state = StateClosed
		h.metrics.HandshakeRejected()
		s.log.Warn().Err(err).Msg("rejecting connection")
		if closeErr := s.conn.Close(err.Error()); closeErr != nil {
			s.log.Debug().Err(closeErr).Msg("close rejected connection")
		}
		return err
	}

	s.member = &Member{Conn: s.conn, Username: username}
	s.room = room
	s.log = s.log.With().Str("user", username).Str("room", room).Logger()

	h.registry.Join(room, s.member)
	h.recordUser(ctx, &s.log, username)

	for _, rec := range h.loadHistory(ctx, &s.log, room) {
		if err := h.broadcaster.Send(ctx, s.conn, proto.History(rec.Username, rec.Body, rec.SentAt)); err != nil {
			s.log.Debug().Err(err).Msg("history replay stopped")
			break
		}
	}

	if err := h.broadcaster.Send(ctx, s.conn, proto.Welcome(username, room)); err != nil {
		s.log.Debug().Err(err).Msg("welcome not delivered")
	}

	h.broadcaster.Broadcast(ctx, room, proto.Join(username))
	h.broadcastRoster(ctx, room)

	s.state = StateActive
	h.metrics.SessionOpened()
	s.log.Info().Int("members", h.registry.MemberCount(room)).Msg("joined room")

	return nil
}

// Message relays text to the whole room, sender included. Messages on a
// session that is not active are dropped.
func (s *Session) Message(ctx context.Context, text string) DeliveryReport {
	h := s.hub

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive || s.member == nil || s.room == "" {
		s.log.Debug().Str("state", s.state.String()).Msg("dropping message on inactive session")
		return DeliveryReport{}
	}

	body := strings.ToValidUTF8(text, "\uFFFD")
	sentAt := h.now().UnixMilli()

	h.appendHistory(ctx, &s.log, s.room, s.member.Username, body, sentAt)

	report := h.broadcaster.Broadcast(ctx, s.room, proto.Message(s.member.Username, body, sentAt))
	s.log.Debug().Int("delivered", report.Delivered).Int("evicted", len(report.Evicted)).Msg("message relayed")

	return report
}

// Close unregisters the member and announces the departure. Only the first
// call has an effect.
func (s *Session) Close(ctx context.Context) {
	h := s.hub

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	wasActive := s.state == StateActive
	s.state = StateClosed

	if s.member == nil {
		return
	}

	h.registry.Leave(s.room, s.member)
	h.broadcaster.Broadcast(ctx, s.room, proto.Leave(s.member.Username))
	h.broadcastRoster(ctx, s.room)

	if wasActive {
		h.metrics.SessionClosed()
	}
	s.log.Info().Int("members", h.registry.MemberCount(s.room)).Msg("left room")
}

// Error records a transport failure. Cleanup is left to the Close that follows.
func (s *Session) Error(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Warn().Err(&TransportError{ConnID: s.conn.ID(), Err: err}).Str("state", s.state.String()).Msg("transport error")
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username is empty until Open succeeds.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.member == nil {
		return ""
	}
	return s.member.Username
}

// Room is empty until Open succeeds.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}
