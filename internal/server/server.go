// Package server wires the configuration, dispatcher, handlers and
// middleware into the HTTP gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
	"github.com/mihaisavezi/endpoint-proxy/internal/config"
	"github.com/mihaisavezi/endpoint-proxy/internal/dispatch"
	"github.com/mihaisavezi/endpoint-proxy/internal/handlers"
	"github.com/mihaisavezi/endpoint-proxy/internal/middleware"
	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
	"github.com/mihaisavezi/endpoint-proxy/internal/translator"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	config   *config.Manager
	registry *providers.Registry
	logger   *slog.Logger
	client   *http.Client
	status   *handlers.StatusTracker
	server   *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithHTTPClient sets the client used for upstream and token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) {
		s.client = client
	}
}

func New(configManager *config.Manager, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		config:   configManager,
		registry: providers.Default(),
		logger:   logger,
		status:   handlers.NewStatusTracker(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		// Per-request deadlines come from the configured timeout.
		s.client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	return s
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting server",
		"address", addr,
		"providers", len(cfg.Providers),
		"endpoints", s.registry.List(),
	)

	errCh := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}

		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")

	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler returns the routed and middleware-wrapped gateway.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	dispatcher := dispatch.New(s.client, s.registry, auth.DefaultExecutors(s.client), translator.Builtin())

	proxyHandler := handlers.NewProxyHandler(s.config, s.registry, dispatcher, s.status, s.logger)
	healthHandler := handlers.NewHealthHandler(s.config, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.config, s.logger)
	providersHandler := handlers.NewProvidersHandler(s.config, proxyHandler, s.status, s.logger)
	settingsHandler := handlers.NewSettingsHandler(s.config, s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)
	api := middlewareSet.DefaultChain()

	mux.Handle("GET /health", middlewareSet.HealthChain().Handler(healthHandler))

	mux.Handle("POST /v1/embeddings", api.HandlerFunc(proxyHandler.Embeddings))
	mux.Handle("POST /v1/chat/completions", api.HandlerFunc(proxyHandler.ChatCompletions))
	mux.Handle("GET /v1/models", api.Handler(modelsHandler))

	mux.Handle("GET /api/providers", api.Handler(providersHandler))
	mux.Handle("GET /api/settings", api.HandlerFunc(settingsHandler.Export))
	mux.Handle("POST /api/settings", api.HandlerFunc(settingsHandler.Import))

	// Preflight for every route above.
	mux.Handle("OPTIONS /", api.Handler(http.NotFoundHandler()))

	return mux
}
