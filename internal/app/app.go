package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	relaylog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/memory"
	"github.com/vovakirdan/wirechat-relay/internal/store/redisstore"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

const drainPoll = 20 * time.Millisecond

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	store           store.Store
	log             *zerolog.Logger

	sessionsCtx    context.Context
	cancelSessions context.CancelFunc
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	logger = relaylog.OrNop(logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.StoreDriver).Int("history_limit", cfg.HistoryLimit).Msg("store initialized")

	registry := core.NewRegistry()
	recorder := metrics.New(registry)

	broadcaster := core.NewBroadcaster(registry, core.BroadcastConfig{
		WriteTimeout: cfg.WriteTimeout,
		Parallelism:  cfg.BroadcastParallelism,
	}, logger, recorder)

	hub := core.NewHub(registry, broadcaster, core.HubConfig{
		History:        st,
		Users:          st,
		Logger:         logger,
		Metrics:        recorder,
		PersistTimeout: cfg.PersistTimeout,
	})

	server := transporthttp.NewServer(hub, st, st, recorder.Handler(), cfg, logger)

	// Sessions hang off their own context so shutdown can end them;
	// hijacked connections are not tracked by http.Server.Shutdown.
	sessionsCtx, cancelSessions := context.WithCancel(context.WithoutCancel(ctx))
	server.BaseContext = func(net.Listener) context.Context { return sessionsCtx }

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		store:           st,
		log:             logger,
		sessionsCtx:     sessionsCtx,
		cancelSessions:  cancelSessions,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.New(cfg.HistoryLimit), nil
	case config.StoreSQLite:
		st, err := sqlite.New(cfg.SQLitePath, cfg.HistoryLimit)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreRedis:
		st, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.HistoryLimit)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, listener)
}

// Serve runs the server on an existing listener.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	serverErr := make(chan error, 1)

	a.log.Info().Str("addr", listener.Addr().String()).Msg("starting wirechat relay")

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cancelSessions()
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)

		a.cancelSessions()
		a.drain(shutdownCtx)
		a.cleanup()

		if err != nil {
			return err
		}
		return <-serverErr
	}
}

// drain waits for open sessions to leave their rooms.
func (a *App) drain(ctx context.Context) {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for a.registry.RoomCount() > 0 {
		select {
		case <-ctx.Done():
			a.log.Warn().Int("rooms", a.registry.RoomCount()).Msg("shutdown timed out with open sessions")
			return
		case <-ticker.C:
		}
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
