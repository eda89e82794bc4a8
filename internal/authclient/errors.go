// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package authclient

import "errors"

var (
	// ErrInvalidToken means the authentication service rejected the token.
	ErrInvalidToken = errors.New("token is invalid")

	// ErrServiceUnavailable means the authentication service could not be
	// reached, or the circuit breaker is open.
	ErrServiceUnavailable = errors.New("authentication service unavailable")

	// ErrServiceTimeout means the validation call exceeded its deadline.
	ErrServiceTimeout = errors.New("authentication service timed out")

	// ErrInternal covers unexpected validation failures.
	ErrInternal = errors.New("token validation failed")
)
