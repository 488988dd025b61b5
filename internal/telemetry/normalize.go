// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package telemetry

import (
	"fmt"
	"math"
)

// MaxSamples bounds the mouse path length accepted from a single submission.
const MaxSamples = 20000

// MaxKeystrokes bounds the keystroke timestamp list.
const MaxKeystrokes = 5000

// Normalize validates a payload and shapes it into RawTelemetry.
//
// mouse_path must be present, but may be empty. Each sample needs at least
// three finite numbers [x, y, t]; extra trailing values are ignored.
// click_timestamps with fewer than two values means no click was measured.
// keystroke_timestamps may be absent.
func Normalize(p *Payload) (RawTelemetry, error) {
	if p == nil {
		return RawTelemetry{}, &ValidationError{Field: "payload", Reason: "is required"}
	}
	if p.MousePath == nil {
		return RawTelemetry{}, &ValidationError{Field: "mouse_path", Reason: "is required"}
	}
	if len(p.MousePath) > MaxSamples {
		return RawTelemetry{}, &ValidationError{
			Field:  "mouse_path",
			Reason: fmt.Sprintf("exceeds %d samples", MaxSamples),
		}
	}
	if len(p.KeystrokeTimestamps) > MaxKeystrokes {
		return RawTelemetry{}, &ValidationError{
			Field:  "keystroke_timestamps",
			Reason: fmt.Sprintf("exceeds %d values", MaxKeystrokes),
		}
	}
	if p.ScreenWidth < 0 || p.ScreenHeight < 0 {
		return RawTelemetry{}, &ValidationError{Field: "screen_width", Reason: "must not be negative"}
	}

	raw := RawTelemetry{
		MousePath:    make([]Sample, len(p.MousePath)),
		ScreenWidth:  p.ScreenWidth,
		ScreenHeight: p.ScreenHeight,
	}

	for i, s := range p.MousePath {
		if len(s) < 3 {
			return RawTelemetry{}, &ValidationError{
				Field:  fmt.Sprintf("mouse_path[%d]", i),
				Reason: "must be [x, y, t]",
			}
		}
		if !allFinite(s[:3]) {
			return RawTelemetry{}, &ValidationError{
				Field:  fmt.Sprintf("mouse_path[%d]", i),
				Reason: "must contain finite numbers",
			}
		}
		raw.MousePath[i] = Sample{X: s[0], Y: s[1], T: s[2]}
	}

	if len(p.ClickTimestamps) >= 2 {
		if !allFinite(p.ClickTimestamps[:2]) {
			return RawTelemetry{}, &ValidationError{Field: "click_timestamps", Reason: "must contain finite numbers"}
		}
		raw.Click = &ClickTiming{Down: p.ClickTimestamps[0], Up: p.ClickTimestamps[1]}
	}

	if !allFinite(p.KeystrokeTimestamps) {
		return RawTelemetry{}, &ValidationError{Field: "keystroke_timestamps", Reason: "must contain finite numbers"}
	}
	if len(p.KeystrokeTimestamps) > 0 {
		raw.Keystrokes = append([]float64(nil), p.KeystrokeTimestamps...)
	}

	return raw, nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
