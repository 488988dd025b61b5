// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

/*
Package classifier provides the pre-trained binary model that labels a
telemetry feature vector as bot (1) or human (0).

A classifier is built once at start-up and is read-only afterwards, so every
implementation here is safe for concurrent use:

  - Logistic and Forest evaluate a JSON model artifact in-process.
  - Remote calls an external model server over HTTP.
  - Unavailable stands in when no model could be loaded.
  - Fixed returns a canned prediction for tests.

Load wraps the selected backend in Guarded, which adds a per-call timeout and a
circuit breaker. Every failure surfaces as ErrUnavailable.
*/
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/botwatch/internal/telemetry"
)

// ErrUnavailable is returned when no prediction can be produced.
var ErrUnavailable = errors.New("classifier unavailable")

// Label is the binary model output.
type Label int

const (
	LabelHuman Label = 0
	LabelBot   Label = 1
)

// Prediction is a label plus the bot-class probability in [0,1].
type Prediction struct {
	Label       Label
	Probability float64
}

// Classifier predicts a label for a feature vector.
type Classifier interface {
	Predict(ctx context.Context, v telemetry.FeatureVector) (Prediction, error)
}

// ReadinessChecker is implemented by classifiers that can report whether a
// model is loaded.
type ReadinessChecker interface {
	Ready() bool
}

// Modes accepted by Config.Mode.
const (
	ModeArtifact = "artifact"
	ModeRemote   = "remote"
	ModeDisabled = "disabled"
)

// Config selects and tunes the classifier backend.
type Config struct {
	Mode         string
	ArtifactPath string
	RemoteURL    string
	Timeout      time.Duration

	// RateLimit caps remote calls per second. Zero means unlimited.
	RateLimit float64
	Burst     int

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Load builds the configured classifier. When the model cannot be loaded it
// returns an Unavailable classifier together with the cause, so callers can
// log and keep serving trap-mode traffic.
func Load(cfg Config) (Classifier, error) {
	var (
		inner Classifier
		err   error
	)

	switch cfg.Mode {
	case ModeArtifact:
		inner, err = LoadArtifact(cfg.ArtifactPath)
	case ModeRemote:
		inner, err = NewRemote(RemoteConfig{
			URL:       cfg.RemoteURL,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		})
	case ModeDisabled, "":
		err = errors.New("classifier disabled by configuration")
	default:
		err = fmt.Errorf("unknown classifier mode %q", cfg.Mode)
	}

	if err != nil {
		return &Unavailable{Reason: err}, err
	}

	return NewGuarded(inner, GuardConfig{
		Timeout:     cfg.Timeout,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}), nil
}

// Unavailable always fails with ErrUnavailable.
type Unavailable struct {
	Reason error
}

// Predict implements Classifier.
func (u *Unavailable) Predict(context.Context, telemetry.FeatureVector) (Prediction, error) {
	if u.Reason != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, u.Reason)
	}
	return Prediction{}, ErrUnavailable
}

// Ready implements ReadinessChecker.
func (u *Unavailable) Ready() bool { return false }

// Fixed returns the same prediction for every input.
type Fixed struct {
	Label       Label
	Probability float64
	Err         error
}

// Predict implements Classifier.
func (f Fixed) Predict(context.Context, telemetry.FeatureVector) (Prediction, error) {
	if f.Err != nil {
		return Prediction{}, f.Err
	}
	return Prediction{Label: f.Label, Probability: f.Probability}, nil
}

// IsReady reports whether c can be expected to produce predictions.
// Classifiers that do not implement ReadinessChecker count as ready.
func IsReady(c Classifier) bool {
	if c == nil {
		return false
	}
	if rc, ok := c.(ReadinessChecker); ok {
		return rc.Ready()
	}
	return true
}
