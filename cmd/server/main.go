// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package main runs the Botwatch gate.
//
// Start-up order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Attempt store (DuckDB, Badger or memory)
//  3. Classifier (artifact or remote, guarded by a circuit breaker)
//  4. Event bus, with an embedded NATS broker when configured
//  5. Gate engine, dashboard aggregator and websocket hub
//  6. HTTP server
//
// Long-running parts run under a suture supervisor tree. SIGINT and SIGTERM
// drain in-flight requests before exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/botwatch/internal/analytics"
	"github.com/tomtom215/botwatch/internal/api"
	"github.com/tomtom215/botwatch/internal/auth"
	"github.com/tomtom215/botwatch/internal/config"
	"github.com/tomtom215/botwatch/internal/events"
	"github.com/tomtom215/botwatch/internal/gate"
	"github.com/tomtom215/botwatch/internal/logging"
	"github.com/tomtom215/botwatch/internal/supervisor"
	"github.com/tomtom215/botwatch/internal/supervisor/services"
	"github.com/tomtom215/botwatch/internal/verdict"
	ws "github.com/tomtom215/botwatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("store", cfg.Database.Backend).
		Str("classifier", cfg.Classifier.Mode).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("events", cfg.Events.Enabled).
		Msg("Starting Botwatch")

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin; set CORS_ORIGINS before exposing the dashboard")
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Botwatch stopped with an error")
	}
	logging.Info().Msg("Botwatch stopped gracefully")
}

//nolint:gocyclo // sequential wiring
func run(cfg *config.Config) error {
	store, err := openStore(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing attempt store")
		}
	}()

	clf := loadClassifier(&cfg.Classifier)

	policy, err := verdict.NewPolicy(verdict.Band{
		Low:  cfg.Verdict.SuspiciousLow,
		High: cfg.Verdict.SuspiciousHigh,
	})
	if err != nil {
		return fmt.Errorf("invalid verdict band: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	hub := ws.NewHub()
	tree.AddMessagingService(services.NewWebSocketHubService(hub))

	// The engine takes a nil interface, not a nil *Bus, when events are off.
	var publisher gate.Publisher
	bus, broker, err := initEvents(&cfg.Events)
	if err != nil {
		return err
	}
	if bus != nil {
		defer func() {
			if err := bus.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event bus")
			}
		}()
		publisher = bus
		tree.AddDataService(events.NewRelay(bus, hub, cfg.Analytics.TZOffset))
	}
	if broker != nil {
		tree.AddMessagingService(services.NewBrokerService(broker, cfg.Server.ShutdownTimeout))
	}

	engine := gate.NewEngine(store, clf, policy, publisher)
	aggregator := analytics.New(store, analytics.Config{
		TZOffset:    cfg.Analytics.TZOffset,
		RecentLimit: cfg.Analytics.RecentLimit,
		VolumeDays:  cfg.Analytics.VolumeDays,
	})

	authMiddleware, err := auth.NewMiddleware(&cfg.Security, api.Unauthorized)
	if err != nil {
		return fmt.Errorf("failed to initialize admin auth: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Engine:     engine,
		Aggregator: aggregator,
		Store:      store,
		Auth:       authMiddleware,
		Websocket:  ws.NewHandler(hub, cfg.Security.CORSOrigins),
	})
	middleware := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, middleware, authMiddleware).Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// Websocket connections outlive WriteTimeout, so it is left unset.
		IdleTimeout: 60 * time.Second,
	}
	tree.AddAPIService(services.NewGateAPIService(server, server.Addr, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Bool("classifier_ready", engine.ClassifierReady()).Msg("HTTP server configured")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, draining")
		select {
		case treeErr = <-errCh:
		case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
			logging.Warn().Msg("Supervisor did not stop in time")
		}
	case treeErr = <-errCh:
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", treeErr)
	}
	return nil
}
