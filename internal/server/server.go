// Package server implements the model endpoint service: the HTTP surface
// that turns schema snapshots and query results into plans, insights, SQL
// and chart specs by prompting a language model and validating whatever
// comes back.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/datalens-labs/datalens/internal/llm"
)

// Completer is the slice of the LLM client the handlers need.
type Completer interface {
	Complete(ctx context.Context, system string, history []llm.Message, maxTokens int64) (string, error)
}

// Config holds configuration for the model endpoint service.
type Config struct {
	Completer Completer
	Port      int
	Logger    *slog.Logger
}

// Server is the model endpoint service.
type Server struct {
	completer Completer
	port      int
	logger    *slog.Logger
}

// NewServer creates a new model endpoint service instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		completer: cfg.Completer,
		port:      cfg.Port,
		logger:    logger,
	}
}

// Routes builds the service router. Exposed separately so tests can drive
// the handlers through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Post("/api/insights", s.handleInsights)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/visualize", s.handleVisualize)
	r.Get("/healthz", s.handleHealthz)

	return r
}

// Serve starts the service and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting model endpoint service", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down model endpoint service...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
