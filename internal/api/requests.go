// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the shared struct validator for request bodies.
var validate = validator.New()

// statusUpdateRequest is the PATCH body for status transitions.
type statusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=in_review public private rejected"`
}

// pageParams is the parsed page/limit pair for list endpoints.
type pageParams struct {
	Page  int
	Limit int
}

// Offset returns the SQL offset for the page.
func (p pageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// parsePageParams reads page and limit query parameters.
//
// limit must be in [1, maxLimit] and defaults to defaultLimit; page must be
// at least 1 and defaults to 1. Whether page points past the end can only
// be judged against the total count, so that check lives in the handlers.
func parsePageParams(r *http.Request, defaultLimit, maxLimit int) (pageParams, error) {
	params := pageParams{Page: 1, Limit: defaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("limit must be an integer")
		}
		if limit < 1 || limit > maxLimit {
			return params, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
		params.Limit = limit
	}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("page must be an integer")
		}
		if page < 1 {
			return params, fmt.Errorf("page must be at least 1")
		}
		params.Page = page
	}

	return params, nil
}

// totalPages computes the page count for a total at the given limit.
func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
