// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package services adapts the gate's long-running components to
// suture.Service.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/botwatch/internal/logging"
)

const defaultDrainTimeout = 10 * time.Second

// GateServer is the part of *http.Server the gate API service drives.
type GateServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// GateAPIService serves /log, /predict and the admin routes. When the tree
// stops it, in-flight verdicts get drainTimeout to finish so a visitor's
// last trap is not lost mid-write.
type GateAPIService struct {
	server       GateServer
	addr         string
	drainTimeout time.Duration
}

// NewGateAPIService wraps server listening on addr. A non-positive drain
// timeout becomes 10s.
func NewGateAPIService(server GateServer, addr string, drainTimeout time.Duration) *GateAPIService {
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	return &GateAPIService{server: server, addr: addr, drainTimeout: drainTimeout}
}

// Serve implements suture.Service. A listen failure is returned so the
// supervisor restarts the service with backoff.
func (s *GateAPIService) Serve(ctx context.Context) error {
	stopped := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		stopped <- err
	}()
	logging.Info().Str("addr", s.addr).Msg("Gate API listening")

	select {
	case err := <-stopped:
		if err != nil {
			return fmt.Errorf("gate api on %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	start := time.Now()
	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("gate api drain: %w", err)
	}
	<-stopped
	logging.Info().Dur("drained_in", time.Since(start)).Msg("Gate API stopped")
	return ctx.Err()
}

func (s *GateAPIService) String() string {
	return "gate-api"
}
