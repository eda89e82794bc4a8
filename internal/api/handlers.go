// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/opportune-hq/opportuned/internal/config"
	"github.com/opportune-hq/opportuned/internal/database"
	"github.com/opportune-hq/opportuned/internal/geomask"
	"github.com/opportune-hq/opportuned/internal/models"
)

// Store is the persistence surface the handlers depend on. The database
// package provides the production implementation; tests provide stubs.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Opportunity, error)
	List(ctx context.Context, filter database.ListFilter) ([]*models.Opportunity, error)
	Count(ctx context.Context, filter database.ListFilter) (int, error)
	ListChangedBy(ctx context.Context, userID string, limit, offset int) ([]*models.Opportunity, error)
	CountChangedBy(ctx context.Context, userID string) (int, error)
	UpdateStatus(ctx context.Context, id string, expected, target models.Status, changedBy string) (*models.StatusChange, error)
	Ping(ctx context.Context) error
}

// Handler holds the dependencies shared by all endpoint handlers.
type Handler struct {
	store   Store
	masker  *geomask.Masker
	apiCfg  *config.APIConfig
	maskCfg *config.MaskConfig
	started time.Time
}

// NewHandler wires the endpoint handlers.
func NewHandler(store Store, masker *geomask.Masker, apiCfg *config.APIConfig, maskCfg *config.MaskConfig) *Handler {
	return &Handler{
		store:   store,
		masker:  masker,
		apiCfg:  apiCfg,
		maskCfg: maskCfg,
		started: time.Now(),
	}
}

// healthStatus is the health endpoint payload.
type healthStatus struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]string `json:"components"`
}

// Version is set at build time via -ldflags.
var Version = "dev"

// Health reports liveness and component status. Unauthenticated so load
// balancers and monitors can probe it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{"database": "up"}
	status := "ok"
	if err := h.store.Ping(ctx); err != nil {
		components["database"] = "down"
		status = "degraded"
	}

	rw.Success(healthStatus{
		Status:        status,
		Version:       Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Components:    components,
	})
}

// Root serves a minimal service banner on GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{
		"service": "opportuned",
		"version": Version,
	})
}
