// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/opportune-hq/opportuned/internal/metrics"
	"github.com/opportune-hq/opportuned/internal/models"
)

// deadLetterMetadataKey marks messages already routed to the dead-letter
// subject. The stream covers every opportunity subject, so the consumer
// must recognize its own dead letters and skip them.
const deadLetterMetadataKey = "dead_lettered"

// IntakeStore is the persistence surface the intake pipeline needs.
type IntakeStore interface {
	Insert(ctx context.Context, eventType string, data map[string]any) (*models.Opportunity, error)
}

// IntakeConfig holds intake pipeline settings.
type IntakeConfig struct {
	// Topic is the subject filter the consumer subscribes to.
	Topic string

	// DeadLetterSubject receives messages that cannot be processed.
	DeadLetterSubject string

	// MaxRedeliveries is the delivery count at which a failing message is
	// dead-lettered instead of requeued.
	MaxRedeliveries int

	// ThrottlePerSecond caps intake rate; 0 means unlimited.
	ThrottlePerSecond int64
}

// IntakeHandler consumes opportunity events, validates them, and inserts
// them with the initial review status.
//
// Failure policy: transient failures nack so the broker redelivers, with
// the persistent delivery counter capping requeues; permanent failures
// (parse and validation errors) go straight to the dead-letter subject.
// Dead-lettered messages are acked so the work queue drains.
type IntakeHandler struct {
	subscriber *Subscriber
	publisher  *Publisher
	tracker    *RedeliveryTracker
	store      IntakeStore
	serializer *Serializer
	limiter    *rate.Limiter
	config     IntakeConfig
	logger     zerolog.Logger
}

// NewIntakeHandler wires the intake pipeline.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewIntakeHandler(
	subscriber *Subscriber,
	publisher *Publisher,
	tracker *RedeliveryTracker,
	store IntakeStore,
	cfg IntakeConfig,
	logger zerolog.Logger,
) (*IntakeHandler, error) {
	if cfg.Topic == "" || cfg.DeadLetterSubject == "" {
		return nil, fmt.Errorf("%w: topic and dead-letter subject are required", ErrInvalidConfig)
	}
	if cfg.MaxRedeliveries < 1 {
		return nil, fmt.Errorf("%w: max redeliveries must be at least 1", ErrInvalidConfig)
	}

	limit := rate.Inf
	if cfg.ThrottlePerSecond > 0 {
		limit = rate.Limit(cfg.ThrottlePerSecond)
	}

	return &IntakeHandler{
		subscriber: subscriber,
		publisher:  publisher,
		tracker:    tracker,
		store:      store,
		serializer: NewSerializer(),
		limiter:    rate.NewLimiter(limit, int(cfg.ThrottlePerSecond)+1),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Run consumes messages until the context is canceled.
func (h *IntakeHandler) Run(ctx context.Context) error {
	messages, err := h.subscriber.Subscribe(ctx, h.config.Topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", h.config.Topic, err)
	}

	h.logger.Info().Str("topic", h.config.Topic).Msg("Intake consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			h.processMessage(ctx, msg)
		}
	}
}

// processMessage makes the ack/nack/dead-letter decision for one message.
func (h *IntakeHandler) processMessage(ctx context.Context, msg *message.Message) {
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	// Skip our own dead letters.
	if msg.Metadata.Get(deadLetterMetadataKey) != "" {
		msg.Ack()
		return
	}

	if err := h.limiter.Wait(ctx); err != nil {
		msg.Nack()
		return
	}

	deliveries, err := h.tracker.Record(msg.UUID)
	if err != nil {
		// Tracking is protection, not a precondition. Process anyway.
		h.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Redelivery tracking failed")
		deliveries = 1
	}

	err = h.handleEvent(ctx, msg)
	if err == nil {
		h.clearTracking(msg.UUID)
		metrics.EventsConsumed.WithLabelValues("processed").Inc()
		msg.Ack()
		return
	}

	if IsPermanent(err) {
		h.deadLetter(msg, "permanent", err)
		return
	}

	if deliveries >= h.config.MaxRedeliveries {
		h.deadLetter(msg, "max_redeliveries", err)
		return
	}

	h.logger.Warn().Err(err).
		Str("message_uuid", msg.UUID).
		Int("deliveries", deliveries).
		Msg("Event processing failed, requeueing")
	metrics.EventsConsumed.WithLabelValues("retried").Inc()
	msg.Nack()
}

// handleEvent decodes, validates, and persists one event.
func (h *IntakeHandler) handleEvent(ctx context.Context, msg *message.Message) error {
	event, err := h.serializer.Unmarshal(msg.Payload)
	if err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	// A nested data object means the producer double-wrapped the envelope.
	if _, nested := event.Data["data"]; nested && len(event.Data) == 1 {
		return Permanent("envelope data is double-nested", nil)
	}

	opp, err := h.store.Insert(ctx, event.EventType, event.Data)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	metrics.OpportunitiesInserted.Inc()
	h.logger.Info().
		Str("opportunity_id", opp.ID).
		Str("event_type", opp.EventType).
		Msg("Opportunity ingested")
	return nil
}

// deadLetter republishes the message to the dead-letter subject and acks
// the original. A failed dead-letter publish nacks instead, so the
// message is redelivered rather than lost.
func (h *IntakeHandler) deadLetter(msg *message.Message, reason string, cause error) {
	dlqMsg := message.NewMessage(msg.UUID, msg.Payload)
	for k, v := range msg.Metadata {
		dlqMsg.Metadata.Set(k, v)
	}
	dlqMsg.Metadata.Set(deadLetterMetadataKey, reason)
	dlqMsg.Metadata.Set("dead_lettered_at", time.Now().UTC().Format(time.RFC3339))
	if cause != nil {
		dlqMsg.Metadata.Set("failure", cause.Error())
	}

	if err := h.publisher.Publish(h.config.DeadLetterSubject, dlqMsg); err != nil {
		h.logger.Error().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Dead-letter publish failed, requeueing original")
		msg.Nack()
		return
	}

	h.clearTracking(msg.UUID)
	metrics.EventsConsumed.WithLabelValues("dead_lettered").Inc()
	metrics.DeadLetteredEvents.WithLabelValues(reason).Inc()
	h.logger.Warn().
		Str("message_uuid", msg.UUID).
		Str("reason", reason).
		AnErr("cause", cause).
		Msg("Message dead-lettered")
	msg.Ack()
}

func (h *IntakeHandler) clearTracking(messageUUID string) {
	if err := h.tracker.Clear(messageUUID); err != nil {
		h.logger.Warn().Err(err).Str("message_uuid", messageUUID).Msg("Failed to clear redelivery count")
	}
}
