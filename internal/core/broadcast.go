package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	relaylog "github.com/vovakirdan/wirechat-relay/internal/log"
)

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Evicted   []*Member
}

// BroadcastConfig tunes delivery.
type BroadcastConfig struct {
	// WriteTimeout bounds each Send; zero means no bound beyond the caller's context.
	WriteTimeout time.Duration
	// Parallelism is the number of concurrent Sends per broadcast; values below 2 send sequentially.
	Parallelism int
}

// Broadcaster fans messages out to the members of a room.
type Broadcaster struct {
	registry     *Registry
	writeTimeout time.Duration
	parallelism  int
	log          *zerolog.Logger
	metrics      Metrics
}

// NewBroadcaster builds a broadcaster over registry.
func NewBroadcaster(registry *Registry, cfg BroadcastConfig, logger *zerolog.Logger, metrics Metrics) *Broadcaster {
	return &Broadcaster{
		registry:     registry,
		writeTimeout: cfg.WriteTimeout,
		parallelism:  cfg.Parallelism,
		log:          relaylog.OrNop(logger),
		metrics:      metricsOrNop(metrics),
	}
}

// Broadcast delivers message to every member of room.
//
// It iterates a snapshot, so no registry lock is held while writing. A member
// that is closed or whose Send fails is evicted after the pass; the others
// still receive the message.
func (b *Broadcaster) Broadcast(ctx context.Context, room, message string) DeliveryReport {
	members := b.registry.Snapshot(room)
	if len(members) == 0 {
		return DeliveryReport{}
	}

	// The caller may be a sender that is hanging up; its cancellation must not
	// fail deliveries to everyone else.
	ctx = context.WithoutCancel(ctx)

	failures := make([]error, len(members))
	if b.parallelism < 2 || len(members) == 1 {
		for i, m := range members {
			failures[i] = b.deliver(ctx, m.Conn, message)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(b.parallelism)
		for i, m := range members {
			i, m := i, m
			g.Go(func() error {
				failures[i] = b.deliver(ctx, m.Conn, message)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := DeliveryReport{Attempted: len(members)}
	for i, err := range failures {
		if err == nil {
			report.Delivered++
			continue
		}
		m := members[i]
		report.Evicted = append(report.Evicted, m)
		b.log.Debug().Err(err).Str("room", room).Str("conn_id", m.Conn.ID()).Str("user", m.Username).Msg("evicting member")
	}

	for _, m := range report.Evicted {
		b.registry.Leave(room, m)
	}

	b.metrics.Broadcast(report)
	b.log.Debug().
		Str("room", room).
		Int("attempted", report.Attempted).
		Int("delivered", report.Delivered).
		Int("evicted", len(report.Evicted)).
		Msg("broadcast")

	return report
}

// Send writes message to a single connection under the same rules as a broadcast.
func (b *Broadcaster) Send(ctx context.Context, conn Conn, message string) error {
	return b.deliver(ctx, conn, message)
}

func (b *Broadcaster) deliver(ctx context.Context, conn Conn, message string) error {
	if !conn.IsOpen() {
		return &SendError{ConnID: conn.ID(), Err: ErrConnClosed}
	}

	if b.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.writeTimeout)
		defer cancel()
	}

	if err := conn.Send(ctx, message); err != nil {
		return &SendError{ConnID: conn.ID(), Err: err}
	}
	return nil
}
