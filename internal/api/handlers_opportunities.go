// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/opportune-hq/opportuned/internal/database"
	"github.com/opportune-hq/opportuned/internal/logging"
	"github.com/opportune-hq/opportuned/internal/metrics"
	"github.com/opportune-hq/opportuned/internal/middleware"
	"github.com/opportune-hq/opportuned/internal/models"
	"github.com/opportune-hq/opportuned/internal/workflow"
)

// ListOpportunities serves the public listing. Only public opportunities
// appear; every document is masked regardless of caller.
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	params, err := parsePageParams(r, h.apiCfg.DefaultPageSize, h.apiCfg.MaxPageSize)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	filter := database.ListFilter{
		Status:   models.StatusPublic,
		Category: r.URL.Query().Get("category"),
		Limit:    params.Limit,
		Offset:   params.Offset(),
	}

	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	pages := totalPages(total, params.Limit)
	if total > 0 && params.Page > pages {
		rw.BadRequestWithDetails(
			fmt.Sprintf("page %d is out of range", params.Page),
			map[string]any{"valid_pages": fmt.Sprintf("1-%d", pages), "total": total},
		)
		return
	}

	opps, err := h.store.List(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	items := make([]*models.Opportunity, 0, len(opps))
	for _, opp := range opps {
		items = append(items, maskOpportunity(opp, h.masker, h.maskCfg.ListRadiusKM))
	}

	rw.SuccessWithPagination(items, &PaginationMeta{
		Total:      total,
		Count:      len(items),
		Page:       params.Page,
		TotalPages: pages,
		Limit:      params.Limit,
		HasMore:    params.Page < pages,
	})
}

// MapOpportunities serves masked coordinates of public opportunities for
// map rendering. The tighter map radius trades privacy for clustering.
func (h *Handler) MapOpportunities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter := database.ListFilter{
		Status:   models.StatusPublic,
		Category: r.URL.Query().Get("category"),
		Limit:    h.apiCfg.MaxPageSize * 10,
	}

	opps, err := h.store.List(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	points := make([]mapPoint, 0, len(opps))
	for _, opp := range opps {
		lat, lon, ok := extractLocation(opp.Data)
		if !ok {
			continue
		}
		mLat, mLon := h.masker.Mask(lat, lon, h.maskCfg.MapRadiusKM)
		points = append(points, mapPoint{ID: opp.ID, Lat: mLat, Lng: mLon})
	}

	rw.Success(points)
}

// MyChanges lists opportunities the caller has reviewed, annotated with
// the caller's own history entries.
func (h *Handler) MyChanges(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		rw.Unauthorized("authentication required")
		return
	}

	params, err := parsePageParams(r, h.apiCfg.DefaultPageSize, h.apiCfg.MaxPageSize)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	total, err := h.store.CountChangedBy(r.Context(), identity.UserID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	pages := totalPages(total, params.Limit)
	if total > 0 && params.Page > pages {
		rw.BadRequestWithDetails(
			fmt.Sprintf("page %d is out of range", params.Page),
			map[string]any{"valid_pages": fmt.Sprintf("1-%d", pages), "total": total},
		)
		return
	}

	opps, err := h.store.ListChangedBy(r.Context(), identity.UserID, params.Limit, params.Offset())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	type changedOpportunity struct {
		*models.Opportunity
		MyChanges []models.StatusChange `json:"myChanges"`
	}

	items := make([]changedOpportunity, 0, len(opps))
	for _, opp := range opps {
		var mine []models.StatusChange
		for _, change := range opp.StatusHistory {
			if change.ChangedBy == identity.UserID {
				mine = append(mine, change)
			}
		}
		items = append(items, changedOpportunity{Opportunity: opp, MyChanges: mine})
	}

	rw.SuccessWithPagination(items, &PaginationMeta{
		Total:      total,
		Count:      len(items),
		Page:       params.Page,
		TotalPages: pages,
		Limit:      params.Limit,
		HasMore:    params.Page < pages,
	})
}

// GetOpportunity fetches a single opportunity. Submitters see their own
// document unmasked; everyone else gets the same masking as the listing.
func (h *Handler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		rw.BadRequest("opportunity id must be a valid UUID")
		return
	}

	opp, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("opportunity not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	identity := middleware.IdentityFromContext(r.Context())
	if identity != nil && identity.UserID != "" && identity.UserID == opp.SubmitterID() {
		rw.Success(opp)
		return
	}

	rw.Success(maskOpportunity(opp, h.masker, h.maskCfg.ListRadiusKM))
}

// UpdateStatus handles review transitions.
//
// Ordering matters: a repeat of the current status short-circuits to 304
// before the transition table is consulted, so retries of a successful
// call stay idempotent instead of turning into 400s.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		rw.Unauthorized("authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		rw.BadRequest("opportunity id must be a valid UUID")
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("request body must be valid JSON")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rw.ValidationError("status must be one of in_review, public, private, rejected", map[string]any{
			"allowed": models.Statuses(),
		})
		return
	}
	target := models.Status(req.Status)

	opp, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("opportunity not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	if opp.Status == target {
		rw.NotModified()
		return
	}

	if err := workflow.Check(opp.Status, target); err != nil {
		var te *workflow.TransitionError
		if errors.As(err, &te) {
			rw.InvalidTransition(te.Error(), map[string]any{
				"current":     te.Current,
				"requested":   te.Requested,
				"allowed":     workflow.AllowedFrom(te.Current),
				"transitions": workflow.Table(),
			})
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	change, err := h.store.UpdateStatus(r.Context(), id, opp.Status, target, identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNoChange):
			rw.NotModified()
		case errors.Is(err, database.ErrConflict):
			rw.Conflict("opportunity was modified concurrently, re-read and retry")
		case errors.Is(err, database.ErrNotFound):
			rw.NotFound("opportunity not found")
		default:
			rw.DatabaseError(err)
		}
		return
	}

	metrics.ObserveStatusTransition(string(change.From), string(change.To))
	logging.Ctx(r.Context()).Info().
		Str("opportunity_id", id).
		Str("from", string(change.From)).
		Str("to", string(change.To)).
		Str("changed_by", change.ChangedBy).
		Msg("Status transition applied")

	rw.Success(map[string]any{
		"id":             id,
		"previousStatus": change.From,
		"newStatus":      change.To,
		"changedBy":      change.ChangedBy,
		"changedAt":      change.ChangedAt,
	})
}
