// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package database

import "errors"

var (
	// ErrNotFound is returned when no opportunity exists with the given ID.
	ErrNotFound = errors.New("opportunity not found")

	// ErrNoChange is returned by UpdateStatus when the opportunity already
	// carries the requested status.
	ErrNoChange = errors.New("opportunity already in requested status")

	// ErrConflict is returned by UpdateStatus when a concurrent transition
	// moved the opportunity away from the expected status.
	ErrConflict = errors.New("opportunity status changed concurrently")
)
