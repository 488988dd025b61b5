// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/botwatch/internal/logging"
	"github.com/tomtom215/botwatch/internal/metrics"
	"github.com/tomtom215/botwatch/internal/telemetry"
)

// GuardConfig tunes the timeout and circuit breaker around a classifier.
type GuardConfig struct {
	Timeout     time.Duration
	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns the production defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:     2 * time.Second,
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}
}

// Guarded bounds every prediction with a timeout and trips a circuit breaker
// after consecutive failures. All failures are reported as ErrUnavailable.
type Guarded struct {
	inner   Classifier
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[Prediction]
}

// NewGuarded wraps inner.
func NewGuarded(inner Classifier, cfg GuardConfig) *Guarded {
	def := DefaultGuardConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	settings := gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ClassifierBreakerState.Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Classifier circuit breaker state changed")
		},
	}

	metrics.ClassifierBreakerState.Set(0)

	return &Guarded{
		inner:   inner,
		timeout: cfg.Timeout,
		cb:      gobreaker.NewCircuitBreaker[Prediction](settings),
	}
}

// Predict implements Classifier.
func (g *Guarded) Predict(ctx context.Context, v telemetry.FeatureVector) (Prediction, error) {
	start := time.Now()

	p, err := g.cb.Execute(func() (Prediction, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.Predict(callCtx, v)
	})

	reason := ""
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	default:
		reason = "inference"
	}
	metrics.RecordClassifierCall(time.Since(start), reason)

	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return Prediction{}, err
		}
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return p, nil
}

// Ready implements ReadinessChecker. A guarded classifier is ready unless its
// breaker is open.
func (g *Guarded) Ready() bool {
	return g.cb.State() != gobreaker.StateOpen && IsReady(g.inner)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
