// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package telemetry turns client-captured interaction data into the fixed
// six-dimensional feature vector consumed by the classifier.
//
// Two steps, both free of shared state:
//
//	raw, err := telemetry.Normalize(payload) // shape + validate
//	vec := telemetry.Extract(raw)            // pure math, never fails
package telemetry

import "fmt"

// Sample is one mouse position captured at time T (client milliseconds).
type Sample struct {
	X float64
	Y float64
	T float64
}

// ClickTiming holds the press and release times of the submit click.
type ClickTiming struct {
	Down float64
	Up   float64
}

// Dwell returns Up - Down.
func (c ClickTiming) Dwell() float64 {
	return c.Up - c.Down
}

// RawTelemetry is the canonical, validated form of a classification payload.
type RawTelemetry struct {
	MousePath    []Sample
	Click        *ClickTiming
	Keystrokes   []float64
	ScreenWidth  int
	ScreenHeight int
}

// WindowDims formats the screen size as "WxH".
func (r *RawTelemetry) WindowDims() string {
	return fmt.Sprintf("%dx%d", r.ScreenWidth, r.ScreenHeight)
}

// Payload is the wire form of a classification request.
type Payload struct {
	MousePath           [][]float64 `json:"mouse_path"`
	ClickTimestamps     []float64   `json:"click_timestamps"`
	KeystrokeTimestamps []float64   `json:"keystroke_timestamps"`
	ScreenWidth         int         `json:"screen_width" validate:"gte=0,lte=100000"`
	ScreenHeight        int         `json:"screen_height" validate:"gte=0,lte=100000"`
}

// ValidationError reports a malformed or missing telemetry field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry field %s: %s", e.Field, e.Reason)
}
