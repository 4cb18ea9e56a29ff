package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-groups/internal/web/handlers"
	"github.com/kozaktomas/photo-groups/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	// Create handlers
	groupsHandler := handlers.NewSimilarGroupsHandler(s.config, s.service)
	imagesHandler := handlers.NewImagesHandler(s.config, s.images)
	configHandler := handlers.NewConfigHandler(s.config)
	healthHandler := handlers.NewHealthHandler(s.health)

	// No auth required
	s.router.Get("/api/v1/health", healthHandler.Get)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOwner(s.signer))

			// Similar groups
			r.Get("/similar-groups", groupsHandler.List)
			r.Post("/similar-groups", groupsHandler.Create)
			r.Get("/similar-groups/{id}/images", groupsHandler.Images)
			r.Post("/similar-groups/{id}/confirm", groupsHandler.Confirm)
			r.Post("/similar-groups/{id}/confirm-best", groupsHandler.ConfirmBest)
			r.Post("/similar-groups/{id}/reject", groupsHandler.Reject)

			// Images
			r.Get("/images/trash", imagesHandler.Trash)
			r.Post("/images/{id}/restore", imagesHandler.Restore)
			r.Delete("/images/{id}", imagesHandler.Delete)
			r.Post("/images/{id}/analysis-results", imagesHandler.SaveAnalysis)

			// Config
			r.Get("/config", configHandler.Get)
		})
	})
}
