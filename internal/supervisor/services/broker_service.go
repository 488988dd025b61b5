// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
)

// ErrBrokerStopped is returned when the broker is found stopped. The
// service does not restart it: clients hold its URL, so a replacement
// needs a new process.
var ErrBrokerStopped = errors.New("embedded broker is not running")

// Broker is an in-process message broker that was started before the tree.
type Broker interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// BrokerService owns the embedded broker's shutdown.
type BrokerService struct {
	broker          Broker
	shutdownTimeout time.Duration
	checkInterval   time.Duration
}

// NewBrokerService wraps broker.
func NewBrokerService(broker Broker, shutdownTimeout time.Duration) *BrokerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BrokerService{
		broker:          broker,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   5 * time.Second,
	}
}

// Serve implements suture.Service. It watches the broker until ctx ends and
// then shuts it down.
func (s *BrokerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		if !s.broker.IsRunning() {
			return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, ErrBrokerStopped)
		}

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.broker.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded broker shutdown failed: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *BrokerService) String() string {
	return "embedded-nats"
}
