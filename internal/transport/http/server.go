package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/datingchat-server/internal/config"
	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/observability"
)

// NewServer builds the HTTP server with REST, websocket and operational routes.
func NewServer(orch *core.Orchestrator, hub *core.Hub, tokens TokenValidator, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(orch, hub, tokens, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine.
func NewRouter(orch *core.Orchestrator, hub *core.Hub, tokens TokenValidator, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", observability.Handler())

	router.GET("/ws/messages", gin.WrapH(NewWSHandler(core.SessionChat, orch, hub, tokens, cfg, logger)))
	router.GET("/ws/presence", gin.WrapH(NewWSHandler(core.SessionPresence, orch, hub, tokens, cfg, logger)))

	handlers := NewMessageHandlers(orch, logger)
	api := router.Group("/api", AuthMiddleware(tokens, logger))
	api.POST("/messages", handlers.SendMessage)
	api.GET("/messages", handlers.ListMessages)
	api.GET("/messages/thread/:username", handlers.GetThread)
	api.DELETE("/messages/:id", handlers.DeleteMessage)
	api.GET("/presence/online", handlers.OnlineUsers)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
