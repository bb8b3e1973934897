package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"photorelay/internal/api"
	"photorelay/internal/audit"
	"photorelay/internal/config"
	"photorelay/internal/hub"
	"photorelay/internal/relay"
	"photorelay/internal/session"
	"photorelay/internal/websocket"
)

// Application wires all components and owns their lifecycle.
type Application struct {
	cfg        *config.Config
	uploads    *audit.Store
	sessions   *session.Registry
	rooms      *hub.Hub
	protocol   *relay.Handler
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds the component graph in dependency order:
// audit -> sessions -> hub -> relay -> websocket -> api -> http.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var uploads *audit.Store
	if cfg.Audit.Path != "" {
		store, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open upload log: %w", err)
		}
		uploads = store
	}

	sessions := session.NewRegistry()
	rooms := hub.NewHub(sessions)

	var limiter *relay.RateLimiter
	if cfg.Relay.UploadRateLimit > 0 {
		limiter = relay.NewRateLimiter(cfg.Relay.UploadRateLimit)
	}
	protocol := relay.NewHandler(sessions, rooms, uploads, limiter)

	wsHandler := websocket.NewHandler(rooms, protocol, websocket.Options{
		ReadLimit:    cfg.WebSocket.ReadLimit,
		PingInterval: cfg.WebSocket.PingInterval,
		PongWait:     cfg.WebSocket.PongWait,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	})

	apiServer, err := api.NewServer(sessions, rooms, uploads, http.HandlerFunc(wsHandler.HandleWebSocket))
	if err != nil {
		if uploads != nil {
			_ = uploads.Close()
		}
		return nil, fmt.Errorf("failed to build http surface: %w", err)
	}

	httpServer := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     apiServer,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// No WriteTimeout: it would sever long-lived WebSocket
		// connections sharing this listener.
	}

	return &Application{
		cfg:        cfg,
		uploads:    uploads,
		sessions:   sessions,
		rooms:      rooms,
		protocol:   protocol,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start launches the HTTP listener and waits briefly to surface immediate
// bind failures.
func (app *Application) Start(ctx context.Context) error {
	log.Info().Str("module", "app").Str("addr", app.httpServer.Addr).Msg("starting photorelay")

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Info().Str("module", "app").Msg("photorelay started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: listener first, then the upload log.
func (app *Application) Stop(ctx context.Context) error {
	log.Info().Str("module", "app").Msg("shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Error().Str("module", "app").Err(err).Msg("http shutdown error")
	}

	if app.uploads != nil {
		if err := app.uploads.Close(); err != nil {
			log.Error().Str("module", "app").Err(err).Msg("upload log close error")
		}
	}

	log.Info().Str("module", "app").Msg("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
