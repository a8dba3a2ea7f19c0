package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/desertthunder/nowplaying/internal/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that owns a set of routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Subscriber starts live playback feeds. Implemented by [tasks.Supervisor].
type Subscriber interface {
	Subscribe(ctx context.Context, subscriber string) (*tasks.Subscription, error)
}

// Server is the HTTP front of the playback feed.
type Server struct {
	httpServer *http.Server
	supervisor *tasks.Supervisor
	router     *BasicRouter
	logger     *log.Logger
}

// NewServer wires every route onto a [BasicRouter] listening on cfg.Server.Addr().
func NewServer(cfg *shared.Config, supervisor *tasks.Supervisor, oauth services.OAuthService, store models.TokenStore, logger *log.Logger) *Server {
	router := NewBasicRouter()
	router.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(),
	)

	router.Handle(http.MethodGet, "/healthz", NewHealthHandler(supervisor))
	router.Handle(http.MethodGet, "/metrics", promhttp.Handler())
	router.Handle(http.MethodGet, "/sse", NewSSEHandler(supervisor, cfg.Server.Heartbeat, logger))
	router.Handle(http.MethodGet, "/ws", NewWSHandler(supervisor, cfg.Server.Heartbeat, logger))
	router.Handler(NewAuthHandler(oauth, store, cfg.Server.PublicURL, logger))

	if cfg.Server.StaticDir != "" {
		router.Handle(http.MethodGet, "/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		supervisor: supervisor,
		router:     router,
		logger:     logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains subscriptions and shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "subscriptions", s.supervisor.Active())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes every live stream first so that in-flight handlers return, then stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(
		s.supervisor.Shutdown(ctx),
		s.httpServer.Shutdown(ctx),
	)
}
