// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package eventprocessor

// OpportunityEvent is the wire envelope producers publish to the stream.
//
// The contract is a single-level envelope: eventType at the top, the
// opportunity body under data. A payload nesting another data object
// inside data is a producer defect and fails validation.
type OpportunityEvent struct {
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
}

// Validate enforces the envelope contract. Violations are permanent:
// redelivery cannot repair a malformed payload.
func (e *OpportunityEvent) Validate() error {
	if e.EventType == "" {
		return Permanent("envelope missing eventType", nil)
	}
	if len(e.Data) == 0 {
		return Permanent("envelope data must be a non-empty object", nil)
	}
	return nil
}
