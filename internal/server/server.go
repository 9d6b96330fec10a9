// Package server exposes the agent's HTTP API: health, parameter updates,
// recent results, the audit log and the settlement websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/server/handler"
	"github.com/alanyoungcy/omentrader/internal/server/middleware"
	"github.com/alanyoungcy/omentrader/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables API key checks

	// UpdateRateLimit bounds POST /update_params per client per UpdateWindow.
	UpdateRateLimit int
	UpdateWindow    time.Duration
}

// Handlers aggregates the handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Params  *handler.ParamsHandler
	Results *handler.ResultsHandler
	Audit   *handler.AuditHandler // nil when no audit store is configured
}

// Server is the agent's HTTP and websocket server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain. hub and
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      routes(cfg, handlers, hub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func routes(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/params", handlers.Params.Get)
	mux.HandleFunc("GET /api/results", handlers.Results.List)
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}
	// The update endpoint authenticates with the shared secret in its body.
	mux.HandleFunc("POST /update_params", handlers.Params.Update)
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	window := cfg.UpdateWindow
	if window <= 0 {
		window = time.Minute
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, []string{"/api/", "/ws"}, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.UpdateRateLimit, window, "/update_params")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
