// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package gate runs a submission through the verdict pipeline and records it.
//
// Trap events carry their verdict with them and never touch the classifier.
// Telemetry submissions flow through normalization, feature extraction, the
// classifier and the verdict policy. Either way the resulting record is
// appended to the attempt store and published to subscribers.
package gate

import (
	"errors"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/telemetry"
	"github.com/tomtom215/botwatch/internal/verdict"
)

// ErrStoreWrite marks a verdict that was computed but could not be persisted.
// It is reported through logs and metrics, never to the client.
var ErrStoreWrite = errors.New("attempt store write failed")

// DefaultNote is recorded as the fail reason of a trap event without a note.
const DefaultNote = "Unknown"

// TrapFeatures is the features_calculated object of a trap event.
type TrapFeatures struct {
	Note    string          `json:"note"`
	RawPath json.RawMessage `json:"raw_path,omitempty"`
}

// TrapEvent is a pre-computed verdict reported by a client-side trap.
type TrapEvent struct {
	Verdict            verdict.Verdict       `json:"verdict" validate:"required,verdict"`
	ConfidenceScore    float64               `json:"confidence_score" validate:"gte=0,lte=100"`
	TriggerSource      verdict.TriggerSource `json:"trigger_source" validate:"required,trap_source"`
	FeaturesCalculated TrapFeatures          `json:"features_calculated"`
	WindowDims         string                `json:"window_dims" validate:"max=64"`
}

// Outcome is what the engine did with one submission.
type Outcome struct {
	Decision verdict.Decision
	Record   *attempts.Record

	// StoreErr wraps ErrStoreWrite when Record was not persisted.
	StoreErr error
}

// Stored reports whether the record reached the attempt store.
func (o *Outcome) Stored() bool {
	return o.StoreErr == nil
}

// Classification is the outcome of a telemetry submission.
type Classification struct {
	Outcome
	Features telemetry.FeatureVector
	RawPath  json.RawMessage
}
