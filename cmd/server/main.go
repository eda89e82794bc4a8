// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Command server runs the Opportuned service: the stream consumer, the
// DuckDB store, and the HTTP API, under one supervisor tree.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/opportune-hq/opportuned/internal/api"
	"github.com/opportune-hq/opportuned/internal/authclient"
	"github.com/opportune-hq/opportuned/internal/config"
	"github.com/opportune-hq/opportuned/internal/database"
	"github.com/opportune-hq/opportuned/internal/eventprocessor"
	"github.com/opportune-hq/opportuned/internal/geomask"
	"github.com/opportune-hq/opportuned/internal/logging"
	"github.com/opportune-hq/opportuned/internal/supervisor"
	"github.com/opportune-hq/opportuned/internal/supervisor/services"
)

// intakeTopic is the subject filter the consumer subscribes to.
const intakeTopic = "opportunity.>"

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Service failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", api.Version).Msg("Starting opportuned")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Messaging infrastructure. The embedded server serves standalone and
	// development deployments; production points NATS_URL at a broker.
	natsURL := cfg.NATS.URL
	var embedded *eventprocessor.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		embedded, err = eventprocessor.NewEmbeddedServer(eventprocessor.ServerConfig{
			Host:     "127.0.0.1",
			Port:     -1, // random free port
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			return err
		}
		defer embedded.Shutdown()
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return err
	}
	defer nc.Close()

	streams, err := eventprocessor.NewStreamManager(nc, eventprocessor.DefaultStreamConfig(cfg.NATS.Stream))
	if err != nil {
		return err
	}
	provisionCtx, cancelProvision := context.WithTimeout(ctx, 30*time.Second)
	defer cancelProvision()
	if _, err := streams.EnsureStream(provisionCtx); err != nil {
		return err
	}
	logging.Info().Str("stream", cfg.NATS.Stream).Msg("Stream provisioned")

	// Storage.
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Database close failed")
		}
	}()

	tracker, err := eventprocessor.NewRedeliveryTracker(cfg.Database.RedeliveryStoreDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			logging.Warn().Err(err).Msg("Redelivery store close failed")
		}
	}()

	// Intake pipeline.
	wmLogger := eventprocessor.NewWatermillLogger(logging.WithComponent("eventprocessor"))

	subscriberCfg := eventprocessor.SubscriberConfigFromApp(&cfg.NATS)
	subscriberCfg.URL = natsURL
	subscriber, err := eventprocessor.NewSubscriber(subscriberCfg, wmLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			logging.Warn().Err(err).Msg("Subscriber close failed")
		}
	}()

	publisher, err := eventprocessor.NewPublisher(eventprocessor.DefaultPublisherConfig(natsURL), wmLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Publisher close failed")
		}
	}()

	intake, err := eventprocessor.NewIntakeHandler(
		subscriber,
		publisher,
		tracker,
		db,
		eventprocessor.IntakeConfig{
			Topic:             intakeTopic,
			DeadLetterSubject: cfg.NATS.DeadLetterSubject,
			MaxRedeliveries:   cfg.NATS.MaxRedeliveries,
			ThrottlePerSecond: cfg.NATS.ThrottlePerSecond,
		},
		logging.WithComponent("intake"),
	)
	if err != nil {
		return err
	}

	// HTTP API.
	validator := authclient.New(&cfg.Auth)
	handler := api.NewHandler(db, geomask.New(), &cfg.API, &cfg.Mask)
	router := api.NewRouter(handler, validator, &cfg.API)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Supervision. sutureslog speaks slog, so the tree gets its own
	// JSON logger on the same stream as zerolog.
	slogLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewConsumerService(intake))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 15*time.Second))

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("HTTP server starting")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
