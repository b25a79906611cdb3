package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/datingchat-server/internal/auth"
	"github.com/vovakirdan/datingchat-server/internal/config"
	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/messages"
	"github.com/vovakirdan/datingchat-server/internal/notify"
	"github.com/vovakirdan/datingchat-server/internal/presence"
	"github.com/vovakirdan/datingchat-server/internal/store"
	"github.com/vovakirdan/datingchat-server/internal/store/sqlstore"
	transporthttp "github.com/vovakirdan/datingchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	groups          *groups.Manager
	pruneInterval   time.Duration
	idleTTL         time.Duration
	store           store.Store
	publisher       notify.Publisher
	log             *zerolog.Logger
}

// JWTConfig derives token settings from cfg.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// OpenStore connects to the configured database.
func OpenStore(cfg *config.Config) (*sqlstore.SQLStore, error) {
	st, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return st, nil
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("db_driver", cfg.DBDriver).Msg("database initialized")

	// Connections recorded by a previous process are gone.
	if err := st.ClearConnections(context.Background()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("clear stale connections: %w", err)
	}

	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn().Msg("using the development JWT secret; set DATINGCHAT_JWT_SECRET")
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	publisher := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	logger.Info().Str("mode", notify.Mode(publisher)).Msg("offline notifications")

	grp := groups.NewManager(st, logger)
	hub := core.NewHub(grp, logger)
	orch := core.NewOrchestrator(core.Deps{
		Users:    st,
		Presence: presence.NewService(presence.NewRegistry(), logger),
		Groups:   grp,
		Messages: messages.New(st, messages.Options{
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
		}, logger),
		Broadcaster: hub,
		Publisher:   publisher,
	}, cfg.MaxContentLength, logger)

	authService := auth.NewService(st, JWTConfig(cfg))
	server := transporthttp.NewServer(orch, hub, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		groups:          grp,
		pruneInterval:   cfg.GroupPruneInterval,
		idleTTL:         cfg.GroupIdleTTL,
		store:           st,
		publisher:       publisher,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.groups.RunJanitor(ctx, a.pruneInterval, a.idleTTL)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the broker connection and the database.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close publisher")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
