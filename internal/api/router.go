// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

// Package api provides the HTTP API for Shelfscout.
//
// Routing is built on go-chi/chi with production-hardened middleware from
// the Chi ecosystem: go-chi/cors for CORS and go-chi/httprate for IP-based
// rate limiting. All responses use the models.APIResponse envelope.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfscout/shelfscout/internal/config"
)

// Router assembles the HTTP routing tree.
type Router struct {
	handlers   *Handlers
	middleware *Middleware
}

// NewRouter creates a router serving the given handlers with middleware
// built from the API configuration.
func NewRouter(handlers *Handlers, apiCfg *config.APIConfig) *Router {
	return &Router{
		handlers:   handlers,
		middleware: NewMiddleware(apiCfg),
	}
}

// Setup builds the chi routing tree.
//
// Global middleware order matters: request ID first so every later stage
// can log it, then real IP extraction (rate limiting keys on it), panic
// recovery, CORS, and security headers.
func (router *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())
	r.Use(securityHeaders())
	r.Use(prometheusMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Health and service stats are permissive: monitoring tools poll
		// them frequently.
		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimitHealth())
			r.Get("/health", router.handlers.Health)
			r.Get("/stats", router.handlers.Stats)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(router.middleware.RateLimit())
				r.Get("/recommendations", router.handlers.Recommendations)
				r.Get("/preference", router.handlers.Preference)
				r.Get("/purchase-stats", router.handlers.PurchaseStats)
			})

			// Invalidation is a write-ish operation; limit it harder.
			r.Group(func(r chi.Router) {
				r.Use(router.middleware.RateLimitWrite())
				r.Post("/preference/invalidate", router.handlers.InvalidatePreference)
			})
		})
	})

	// Observability
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Handler returns the fully assembled http.Handler.
func (router *Router) Handler() http.Handler {
	return router.Setup()
}
