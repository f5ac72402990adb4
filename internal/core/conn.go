package core

import "context"

// Conn is one client's transport as the core sees it.
//
// Implementations must make Send safe for concurrent callers and keep each
// call atomic on the wire: two overlapping Sends may land in either order but
// never interleave. The transport owns the link; the core only calls Close to
// reject a connection at open.
type Conn interface {
	// ID identifies the connection for its whole lifetime.
	ID() string
	// Send writes one text frame. It fails once the link is closed or broken.
	Send(ctx context.Context, text string) error
	// IsOpen reports whether Send may still succeed.
	IsOpen() bool
	// Close rejects the link with a human-readable reason.
	Close(reason string) error
}
