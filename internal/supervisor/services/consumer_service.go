// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package services

import (
	"context"
)

// Runner is a long-running component driven by a context, such as the
// intake consumer.
type Runner interface {
	Run(ctx context.Context) error
}

// ConsumerService runs the intake consumer under supervision.
type ConsumerService struct {
	runner Runner
}

// NewConsumerService wraps the consumer.
func NewConsumerService(runner Runner) *ConsumerService {
	return &ConsumerService{runner: runner}
}

// Serve implements suture.Service. Suture treats a context.Canceled
// return as a normal stop rather than a crash, so Run's error passes
// through unmodified.
func (c *ConsumerService) Serve(ctx context.Context) error {
	return c.runner.Run(ctx)
}

// String identifies the service in supervisor logs.
func (c *ConsumerService) String() string {
	return "intake-consumer"
}
