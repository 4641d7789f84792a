// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/metrics"
)

// Endpoint-specific rate limit profiles. Read endpoints use the configured
// default; the profiles below cover endpoints with different traffic shapes.
var (
	// rateLimitHealth is permissive for health endpoints so monitoring
	// tools can poll frequently without tripping limits.
	rateLimitHealth = rateLimitProfile{Requests: 1000, Window: time.Minute}

	// rateLimitWrite protects mutating endpoints from floods.
	rateLimitWrite = rateLimitProfile{Requests: 30, Window: time.Minute}
)

type rateLimitProfile struct {
	Requests int
	Window   time.Duration
}

// Middleware provides Chi-compatible middleware factories built from the
// API configuration.
type Middleware struct {
	cfg  *config.APIConfig
	cors func(http.Handler) http.Handler
}

// NewMiddleware creates a middleware factory. A nil configuration yields
// secure defaults: no CORS origins (requiring explicit configuration) and
// 100 requests per minute per IP.
func NewMiddleware(cfg *config.APIConfig) *Middleware {
	if cfg == nil {
		cfg = &config.APIConfig{
			CORSOrigins:     []string{},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		}
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return &Middleware{
		cfg:  cfg,
		cors: corsHandler,
	}
}

// CORS returns the go-chi/cors middleware for the configured origins.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns an IP-based rate limiter with the configured default
// requests-per-window, or a no-op when rate limiting is disabled.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return passthrough
	}
	return httprate.LimitByIP(m.cfg.RateLimitReqs, m.cfg.RateLimitWindow)
}

// RateLimitHealth returns a permissive rate limiter for health endpoints.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.rateLimitCustom(rateLimitHealth)
}

// RateLimitWrite returns a stricter rate limiter for mutating endpoints.
func (m *Middleware) RateLimitWrite() func(http.Handler) http.Handler {
	return m.rateLimitCustom(rateLimitWrite)
}

func (m *Middleware) rateLimitCustom(p rateLimitProfile) func(http.Handler) http.Handler {
	if m.cfg.RateLimitDisabled {
		return passthrough
	}
	return httprate.LimitByIP(p.Requests, p.Window)
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// securityHeaders adds standard security headers to API responses.
// Content-Security-Policy is omitted: it is designed for HTML, and this
// server only serves JSON and Prometheus text.
func securityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// prometheusMiddleware records per-request metrics keyed by the chi route
// pattern rather than the raw URL path, keeping label cardinality bounded.
func prometheusMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.TrackActiveRequest(true)
			defer metrics.TrackActiveRequest(false)

			ww := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), time.Since(start))
		})
	}
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
