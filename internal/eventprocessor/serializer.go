// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package eventprocessor

import (
	json "github.com/goccy/go-json"
)

// Serializer converts opportunity events to and from the wire format.
type Serializer struct{}

// NewSerializer creates a serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal encodes an event to JSON.
func (s *Serializer) Marshal(event *OpportunityEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Unmarshal decodes an event envelope. Decode failures are permanent;
// the broker redelivering the same bytes cannot make them parse.
func (s *Serializer) Unmarshal(payload []byte) (*OpportunityEvent, error) {
	var event OpportunityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, Permanent("malformed event payload", err)
	}
	return &event, nil
}
