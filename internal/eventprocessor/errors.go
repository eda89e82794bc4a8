// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package eventprocessor consumes opportunity events from the durable
// stream and persists them to the store.
package eventprocessor

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when consumer configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// PermanentError marks a failure that redelivery cannot fix, such as a
// malformed payload. The handler routes these straight to the dead-letter
// subject instead of nacking.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
	}
	return "permanent: " + e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// IsPermanent reports whether err is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
