package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Desjajja/o2a/internal/config"
	"github.com/Desjajja/o2a/internal/handlers"
	"github.com/Desjajja/o2a/internal/middleware"
	"github.com/Desjajja/o2a/internal/upstream"
)

// Server binds the translation proxy and its admin surface to one HTTP
// listener. The store and pool are constructed and started by the caller
// before the listener accepts connections; nothing here initializes lazily.
type Server struct {
	addr   string
	store  *config.Store
	pool   *upstream.Pool
	logger *slog.Logger
	server *http.Server
}

func New(addr string, store *config.Store, pool *upstream.Pool, logger *slog.Logger) *Server {
	return &Server{
		addr:   addr,
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

// Router builds the route tree. Exposed separately so tests can drive the
// full stack without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	r.Use(chimiddleware.Recoverer)

	health := handlers.NewHealthHandler(s.logger)
	messages := handlers.NewMessagesHandler(s.store, s.pool, s.logger)
	admin := handlers.NewAdminHandler(s.store, s.pool, s.logger)

	r.Get("/health", health.Check)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/config", admin.GetConfig)
		r.Put("/config", admin.PutConfig)
		r.Post("/restart", admin.Restart)
		r.Post("/test-chat", admin.TestChat)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", messages.Create)
		r.Get("/models", messages.ListModels)
	})

	return r
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	s.logger.Info("Starting server", "address", s.addr)

	errCh := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")

	return nil
}

// Stop shuts the listener down; safe to call when Start was never run.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
