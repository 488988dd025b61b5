// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/classifier"
	"github.com/tomtom215/botwatch/internal/config"
	"github.com/tomtom215/botwatch/internal/database"
	"github.com/tomtom215/botwatch/internal/events"
	"github.com/tomtom215/botwatch/internal/logging"
)

// openStore opens the configured attempt store.
func openStore(cfg *config.DatabaseConfig) (attempts.Store, error) {
	switch cfg.Backend {
	case config.BackendDuckDB, "":
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open DuckDB: %w", err)
		}
		return attempts.NewDuckDBStore(db), nil

	case config.BackendBadger:
		store, err := attempts.OpenBadgerStore(attempts.BadgerConfig{
			Path:        cfg.BadgerPath,
			SyncWrites:  cfg.BadgerSyncWrites,
			Compression: cfg.BadgerCompression,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open Badger: %w", err)
		}
		return store, nil

	case config.BackendMemory:
		logging.Warn().Msg("Using the in-memory attempt store; attempts are lost on restart")
		return attempts.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}

// loadClassifier never fails start-up: without a model /predict answers 503
// and trap logging carries on.
func loadClassifier(cfg *config.ClassifierConfig) classifier.Classifier {
	clf, err := classifier.Load(classifier.Config{
		Mode:               cfg.Mode,
		ArtifactPath:       cfg.ArtifactPath,
		RemoteURL:          cfg.RemoteURL,
		Timeout:            cfg.Timeout,
		RateLimit:          cfg.RateLimit,
		Burst:              cfg.Burst,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	})
	if err != nil {
		logging.Warn().Err(err).Str("mode", cfg.Mode).Msg("Classifier unavailable; /predict will answer 503")
		return clf
	}
	logging.Info().Str("mode", cfg.Mode).Msg("Classifier loaded")
	return clf
}

// initEvents connects the event bus, starting an embedded broker first when
// configured. Both results are nil when events are disabled.
func initEvents(cfg *config.EventsConfig) (*events.Bus, *events.EmbeddedServer, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Attempt events disabled; the live feed stays idle")
		return nil, nil, nil
	}

	busCfg := events.DefaultConfig()
	busCfg.Backend = cfg.Backend
	busCfg.Topic = cfg.Topic
	busCfg.BufferSize = cfg.BufferSize
	busCfg.NATSURL = cfg.NATSURL
	busCfg.QueueGroup = cfg.QueueGroup
	busCfg.SubscribersCount = cfg.SubscribersCount
	busCfg.AckWaitTimeout = cfg.AckWaitTimeout
	busCfg.CloseTimeout = cfg.CloseTimeout

	var broker *events.EmbeddedServer
	if cfg.Backend == config.EventsNATS && cfg.NATSEmbedded {
		var err error
		broker, err = events.NewEmbeddedServer(events.EmbeddedConfig{
			Host: cfg.NATSHost,
			Port: cfg.NATSPort,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		busCfg.NATSURL = broker.ClientURL()
		logging.Info().Str("url", busCfg.NATSURL).Msg("Embedded NATS server started")
	}

	bus, err := events.NewBus(busCfg, events.NewLogger())
	if err != nil {
		if broker != nil {
			_ = broker.Shutdown(context.Background())
		}
		return nil, nil, fmt.Errorf("failed to connect event bus: %w", err)
	}

	logging.Info().Str("backend", bus.Backend()).Str("topic", bus.Topic()).Msg("Attempt events enabled")
	return bus, broker, nil
}
