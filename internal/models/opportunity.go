// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package models defines the core data structures shared by the event
// consumer, the store, and the HTTP API.
package models

import (
	"time"
)

// Status is the review state of an opportunity.
type Status string

// Review states. An opportunity enters the system as StatusInReview and
// moves between states only through the transition table in the workflow
// package.
const (
	StatusInReview Status = "in_review"
	StatusPublic   Status = "public"
	StatusPrivate  Status = "private"
	StatusRejected Status = "rejected"
)

// Statuses returns every known review state.
func Statuses() []Status {
	return []Status{StatusInReview, StatusPublic, StatusPrivate, StatusRejected}
}

// Valid reports whether s is a known review state.
func (s Status) Valid() bool {
	switch s {
	case StatusInReview, StatusPublic, StatusPrivate, StatusRejected:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// StatusChange is one immutable entry in an opportunity's review history.
type StatusChange struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
}

// Opportunity is the stored representation of a consumed opportunity event.
//
// Data is the submitted payload and is carried as-is; the service never
// enforces a schema on it beyond "non-empty object" at intake. History is
// append-only and ordered oldest first.
type Opportunity struct {
	ID               string         `json:"id"`
	EventType        string         `json:"eventType"`
	Data             map[string]any `json:"data"`
	Status           Status         `json:"status"`
	StatusHistory    []StatusChange `json:"statusHistory"`
	LastStatusChange *StatusChange  `json:"lastStatusChange,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// SubmitterID returns the submitter recorded in the payload, or empty if
// the payload carries none.
func (o *Opportunity) SubmitterID() string {
	if o.Data == nil {
		return ""
	}
	if id, ok := o.Data["submitterId"].(string); ok {
		return id
	}
	return ""
}

// Category returns the payload category used for list filtering, or empty.
func (o *Opportunity) Category() string {
	if o.Data == nil {
		return ""
	}
	if c, ok := o.Data["category"].(string); ok {
		return c
	}
	return ""
}
