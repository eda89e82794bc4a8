// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package metrics exposes Prometheus instrumentation for the intake
// pipeline, the store, and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake pipeline metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportuned_events_consumed_total",
			Help: "Total opportunity events consumed, by outcome",
		},
		[]string{"outcome"}, // "processed", "retried", "dead_lettered"
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opportuned_event_processing_duration_seconds",
			Help:    "Duration of single-event intake processing",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadLetteredEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportuned_dead_lettered_events_total",
			Help: "Total events routed to the dead-letter subject, by reason",
		},
		[]string{"reason"}, // "permanent", "max_redeliveries"
	)

	// Store metrics
	OpportunitiesInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opportuned_opportunities_inserted_total",
			Help: "Total opportunities persisted from the stream",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportuned_status_transitions_total",
			Help: "Total successful review status transitions",
		},
		[]string{"from", "to"},
	)

	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportuned_http_requests_total",
			Help: "Total HTTP requests, by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opportuned_http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Auth service client metrics
	AuthValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportuned_auth_validations_total",
			Help: "Total token validation calls, by outcome",
		},
		[]string{"outcome"}, // "valid", "invalid", "unavailable", "timeout", "error"
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStatusTransition records one successful review transition.
func ObserveStatusTransition(from, to string) {
	StatusTransitions.WithLabelValues(from, to).Inc()
}
