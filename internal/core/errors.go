package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidHandshake rejects a connection opened without username or room.
	ErrInvalidHandshake = errors.New("invalid handshake")
	// ErrConnClosed is reported when writing to a connection that is no longer open.
	ErrConnClosed = errors.New("connection closed")
	// ErrSessionClosed is returned when opening a session twice or after close.
	ErrSessionClosed = errors.New("session already opened or closed")
)

// SendError is a per-connection write failure during delivery.
type SendError struct {
	ConnID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.ConnID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed history or user store call. It is logged, never returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TransportError is an error the transport reported for a connection.
type TransportError struct {
	ConnID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.ConnID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func invalidHandshake(username, room string) error {
	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if room == "" {
		missing = append(missing, "room")
	}
	return fmt.Errorf("%w: %s required", ErrInvalidHandshake, strings.Join(missing, " and "))
}
