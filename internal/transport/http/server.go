package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	relaylog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// NewServer builds the HTTP server: the chat WebSocket endpoint, the
// read-only room and user API, health and, when metricsHandler is set, /metrics.
func NewServer(
	hub *core.Hub,
	history store.HistoryStore,
	users store.UserStore,
	metricsHandler stdhttp.Handler,
	cfg config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	logger = relaylog.OrNop(logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	ws := NewWSHandler(hub, cfg, logger)
	router.GET("/chat", ws.ServeQuery)
	router.GET("/chat/:username/:room", ws.ServePath)

	rooms := NewRoomHandlers(hub.Registry(), history, logger)
	userAPI := NewUserHandlers(users, hub.Registry(), logger)
	api := router.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:room", rooms.GetRoom)
		api.GET("/rooms/:room/history", rooms.GetHistory)
		api.GET("/users/:username", userAPI.GetUser)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{stdhttp.MethodGet, stdhttp.MethodHead},
	}).Handler(router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
