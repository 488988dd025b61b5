// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/botwatch/internal/auth"
)

// Router wires handlers to routes.
type Router struct {
	handler    *Handler
	middleware *Middleware
	auth       *auth.Middleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, middleware *Middleware, authMiddleware *auth.Middleware) *Router {
	return &Router{
		handler:    handler,
		middleware: middleware,
		auth:       authMiddleware,
	}
}

// Unauthorized writes the 401 error envelope. Pass it to auth.NewMiddleware.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, message, nil)
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())
	r.Use(APISecurityHeaders())
	r.Use(PrometheusMetrics)
	r.Use(RequestLogger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Ingestion
	r.Group(func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Post("/log", router.handler.Log)
		r.Post("/predict", router.handler.Predict)
	})

	// Health
	r.Route("/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitCustom(RateLimitHealth))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Admin
	r.Route("/admin", func(r chi.Router) {
		r.With(router.middleware.RateLimitCustom(RateLimitLogin)).Post("/login", router.handler.Login)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimitCustom(RateLimitAdmin))
			r.Use(router.auth.Require)
			r.With(chimiddleware.Compress(5, "application/json")).Get("/stats", router.handler.Stats)
			r.With(chimiddleware.Compress(5, "application/json")).Get("/attempts/{id}", router.handler.Attempt)
			r.Get("/ws", router.handler.WebSocket)
		})
	})

	return r
}
