// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StreamConfig describes the opportunity stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig covers all opportunity subjects, dead letters
// included, so poisoned messages stay replayable.
func DefaultStreamConfig(name string) StreamConfig {
	return StreamConfig{
		Name:            name,
		Subjects:        []string{"opportunity.>"},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        10 << 30,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// StreamManager provisions the JetStream stream the consumer binds to.
type StreamManager struct {
	js     jetstream.JetStream
	config StreamConfig
}

// NewStreamManager creates a stream manager on an existing connection.
func NewStreamManager(nc *natsgo.Conn, cfg StreamConfig) (*StreamManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &StreamManager{js: js, config: cfg}, nil
}

// EnsureStream creates the stream or updates it to the current config.
func (m *StreamManager) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:        m.config.Name,
		Subjects:    m.config.Subjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.config.MaxAge,
		MaxBytes:    m.config.MaxBytes,
		Duplicates:  m.config.DuplicateWindow,
		Replicas:    m.config.Replicas,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	if _, err := m.js.Stream(ctx, m.config.Name); err == nil {
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream: %w", err)
		}
		return stream, nil
	}

	stream, err := m.js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return stream, nil
}
