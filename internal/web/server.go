package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/metrics"
	"github.com/kozaktomas/photo-groups/internal/similar"
	"github.com/kozaktomas/photo-groups/internal/web/handlers"
	"github.com/kozaktomas/photo-groups/internal/web/middleware"
	"github.com/rs/zerolog/log"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	service    *similar.Service
	images     database.ImageWriter
	signer     *middleware.TokenSigner
	health     handlers.SchemaChecker
}

// NewServer creates a new web server. health may be nil, in which case the health
// endpoint reports liveness only.
func NewServer(
	cfg *config.Config,
	service *similar.Service,
	images database.ImageWriter,
	signer *middleware.TokenSigner,
	health handlers.SchemaChecker,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:  cfg,
		router:  r,
		service: service,
		images:  images,
		signer:  signer,
		health:  health,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	// Clustering runs carry their own time budget, so the write timeout must
	// leave room for the largest expected run.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
