// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package events publishes recorded attempts on a watermill bus and relays
// them to live dashboards.
//
// Two backends are supported: an in-process gochannel for single-instance
// deployments and NATS for fan-out across instances. NATS may run embedded.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/botwatch/internal/attempts"
)

// DefaultTopic carries AttemptRecorded events.
const DefaultTopic = "attempt.recorded"

// Metadata keys set on every message.
const (
	MetadataVerdict       = "verdict"
	MetadataTriggerSource = "trigger_source"
)

// ErrInvalidEvent is returned when a payload cannot be decoded.
var ErrInvalidEvent = errors.New("invalid attempt event")

// AttemptRecorded announces a record appended to the attempt log. The mouse
// path is omitted to keep messages small; consumers fetch it by id.
type AttemptRecorded struct {
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Attempt    attempts.Record `json:"attempt"`
}

// NewAttemptRecorded builds the event for rec.
func NewAttemptRecorded(rec *attempts.Record) *AttemptRecorded {
	attempt := *rec
	attempt.MousePath = nil
	return &AttemptRecorded{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Attempt:    attempt,
	}
}

// Encode serializes e.
func (e *AttemptRecorded) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeAttemptRecorded parses and checks a payload.
func DecodeAttemptRecorded(data []byte) (*AttemptRecorded, error) {
	var e AttemptRecorded
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if e.EventID == "" || e.Attempt.ID <= 0 {
		return nil, fmt.Errorf("%w: missing event_id or attempt id", ErrInvalidEvent)
	}
	return &e, nil
}
