// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package workflow encodes the opportunity review state machine.
//
// The transition table is the single authority on which status moves are
// legal. Private is terminal; rejected opportunities may re-enter review.
package workflow

import (
	"fmt"

	"github.com/opportune-hq/opportuned/internal/models"
)

// transitions maps each status to the set of statuses it may move to.
var transitions = map[models.Status][]models.Status{
	models.StatusInReview: {models.StatusPublic, models.StatusRejected},
	models.StatusPublic:   {models.StatusPrivate},
	models.StatusPrivate:  {},
	models.StatusRejected: {models.StatusInReview},
}

// CanTransition reports whether moving from current to requested is legal.
// Unknown statuses are never legal.
func CanTransition(current, requested models.Status) bool {
	for _, next := range transitions[current] {
		if next == requested {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses reachable from current.
// The returned slice is a copy; callers may mutate it freely.
func AllowedFrom(current models.Status) []models.Status {
	next := transitions[current]
	out := make([]models.Status, len(next))
	copy(out, next)
	return out
}

// Table returns the full transition table keyed by status string.
// It is rendered into invalid-transition error responses so clients can
// discover the legal moves without a second round trip.
func Table() map[string][]string {
	out := make(map[string][]string, len(transitions))
	for from, tos := range transitions {
		strs := make([]string, len(tos))
		for i, to := range tos {
			strs[i] = string(to)
		}
		out[string(from)] = strs
	}
	return out
}

// TransitionError describes a rejected status move.
type TransitionError struct {
	Current   models.Status
	Requested models.Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %q to %q is not allowed", e.Current, e.Requested)
}

// Check validates a requested move and returns a *TransitionError when the
// table forbids it.
func Check(current, requested models.Status) error {
	if !CanTransition(current, requested) {
		return &TransitionError{Current: current, Requested: requested}
	}
	return nil
}
