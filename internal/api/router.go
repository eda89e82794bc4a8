// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opportune-hq/opportuned/internal/config"
	"github.com/opportune-hq/opportuned/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler   *Handler
	validator middleware.TokenValidator
	apiCfg    *config.APIConfig
}

// NewRouter wires the handler and auth dependencies into a router.
func NewRouter(handler *Handler, validator middleware.TokenValidator, apiCfg *config.APIConfig) *Router {
	return &Router{
		handler:   handler,
		validator: validator,
		apiCfg:    apiCfg,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order. CORS is global
	// so OPTIONS preflights succeed before any auth check.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.apiCfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Unauthenticated surface: banner, health, metrics. Health gets a
	// permissive limit so monitors can poll freely.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, router.apiCfg.RateLimitWindow))
		r.Get("/", router.handler.Root)
		r.Get("/api/v1/health", router.handler.Health)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Opportunity endpoints: rate limited, instrumented, authenticated.
	r.Route("/api/v1/opportunities", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.apiCfg.RateLimitReqs, router.apiCfg.RateLimitWindow))
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Authenticate(router.validator, AuthErrorWriter{}))

		r.Get("/", router.handler.ListOpportunities)
		r.Get("/map", router.handler.MapOpportunities)
		r.Get("/my-changes", router.handler.MyChanges)
		r.Get("/{id}", router.handler.GetOpportunity)
		r.Patch("/{id}/status", router.handler.UpdateStatus)
	})

	return r
}
