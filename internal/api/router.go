package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Device-facing ingest (HMAC signature auth, not bearer tokens)
		r.Group(func(r chi.Router) {
			r.Use(s.ingestAuthMiddleware)
			r.Post("/events/raw/{deviceID}", s.handleIngestEvent)
		})

		// Protected admin surface
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - caller must be logged in
			r.With(s.requireScope("device:read")).Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.With(s.requireScope("device:read")).Get("/", s.handleListDevices)
				r.With(s.requireScope("device:manage")).Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requireScope("device:read")).Get("/", s.handleGetDevice)
					r.With(s.requireScope("device:manage")).Patch("/", s.handleUpdateDevice)
					r.With(s.requireScope("device:read")).Get("/events", s.handleListDeviceEvents)
				})
			})

			// Guest visit endpoints
			r.Route("/visits", func(r chi.Router) {
				r.Use(s.requireScope("guest:manage"))

				r.Get("/", s.handleListVisits)
				r.Post("/", s.handleCreateVisit)
				r.Post("/expire-overdue", s.handleExpireOverdueVisits)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetVisit)
					r.Patch("/", s.handleUpdateVisit)
					r.Post("/approve", s.handleApproveVisit)
					r.Post("/reject", s.handleRejectVisit)
					r.Post("/activate", s.handleActivateVisit)
					r.Post("/complete", s.handleCompleteVisit)
				})
			})

			// Adapter health surface
			r.Route("/adapters", func(r chi.Router) {
				r.Use(s.requireScope("device:read"))

				r.Get("/health", s.handleAdapterHealth)
				r.Get("/recommended", s.handleAdapterRecommended)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.registry.DeviceCount(),
	})
}
