package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/medication-tracker/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint, outside /api/v1 so scrapers use the
	// conventional path.
	if s.metrics != nil && s.metricsCfg.Enabled {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.requirePermission(auth.PermMetricsScrape))
			r.Handle(pathOr(s.metricsCfg.Path, "/metrics"), s.metrics.Handler())
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Auth via ticket, validated in the handler.
		r.Get(pathOr(s.wsCfg.Path, "/ws"), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleWhoAmI)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermStateRead))

				r.Get("/entities", s.handleListEntities)
				r.Get("/entities/{id}", s.handleGetEntity)
				r.Get("/entities/{id}/history", s.handleGetEntityHistory)
				r.Get("/services", s.handleListServices)
				r.Get("/groups", s.handleListGroups)
				r.Get("/devices", s.handleListDevices)
				r.Get("/devices/{id}", s.handleGetDevice)
				r.Get("/config/entries", s.handleListEntries)
				r.Get("/config/entries/{id}", s.handleGetEntry)
				r.Get("/system/stats", s.handleSystemStats)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermServiceCall))

				r.Post("/services/{domain}/{service}", s.handleCallService)
				r.Post("/entities/{id}/value", s.handleSetEntityValue)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermConfigManage))

				r.Post("/flows", s.handleStartFlow)
				r.Post("/flows/{id}", s.handleFlowStep)
				r.Delete("/flows/{id}", s.handleAbortFlow)
				r.Post("/config/entries/{id}/options", s.handleStartOptionsFlow)
				r.Post("/config/entries/{id}/reload", s.handleReloadEntry)
				r.Delete("/config/entries/{id}", s.handleDeleteEntry)
				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}

// pathOr returns path, or def when path is not an absolute route.
func pathOr(path, def string) string {
	if !strings.HasPrefix(path, "/") {
		return def
	}
	return path
}
