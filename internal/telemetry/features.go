// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package telemetry

import "math"

const (
	// TimeEpsilon is added to every inter-sample time delta.
	TimeEpsilon = 0.001

	// normEpsilon is added to the norm product in the curvature cosine.
	normEpsilon = 1e-10

	// FeatureCount is the length of every FeatureVector.
	FeatureCount = 6
)

// Feature indexes, in classifier input order.
const (
	MovementTime = iota
	SpeedVariance
	PathEfficiency
	CurvatureSum
	ClickDwell
	TypingFlightAvg
)

// FeatureNames lists the vector components in order.
var FeatureNames = [FeatureCount]string{
	"movement_time",
	"speed_variance",
	"path_efficiency",
	"curvature_sum",
	"click_dwell",
	"typing_flight_avg",
}

// FeatureVector is the fixed-length model input.
type FeatureVector [FeatureCount]float64

// Efficiency returns the path_efficiency component.
func (v FeatureVector) Efficiency() float64 { return v[PathEfficiency] }

// Curvature returns the curvature_sum component.
func (v FeatureVector) Curvature() float64 { return v[CurvatureSum] }

// DegenerateVector is returned when the mouse path has fewer than two samples,
// regardless of click or keystroke data. A missing path reads as perfectly
// efficient, which is the bot-like end.
var DegenerateVector = FeatureVector{0, 0, 1, 0, 0, 0}

// Extract computes the feature vector. It never returns NaN or Inf.
func Extract(raw RawTelemetry) FeatureVector {
	if len(raw.MousePath) < 2 {
		return DegenerateVector
	}

	path := raw.MousePath
	n := len(path)

	dx := make([]float64, n-1)
	dy := make([]float64, n-1)
	dist := make([]float64, n-1)
	speeds := make([]float64, n-1)
	var total float64

	for i := 0; i < n-1; i++ {
		dx[i] = path[i+1].X - path[i].X
		dy[i] = path[i+1].Y - path[i].Y
		dist[i] = math.Hypot(dx[i], dy[i])
		dt := path[i+1].T - path[i].T + TimeEpsilon
		speeds[i] = dist[i] / dt
		total += dist[i]
	}

	efficiency := 1.0
	if total > 0 {
		straight := math.Hypot(path[n-1].X-path[0].X, path[n-1].Y-path[0].Y)
		efficiency = math.Min(straight/total, 1)
	}

	var curvature float64
	for i := 0; i+1 < len(dist); i++ {
		dot := dx[i]*dx[i+1] + dy[i]*dy[i+1]
		cos := dot / (dist[i]*dist[i+1] + normEpsilon)
		curvature += math.Acos(clamp(cos, -1, 1))
	}

	return FeatureVector{
		finite(path[n-1].T - path[0].T),
		finite(stdDev(speeds)),
		finite(efficiency),
		finite(curvature),
		finite(clickDwell(raw.Click)),
		finite(flightAverage(raw.Keystrokes)),
	}
}

func clickDwell(c *ClickTiming) float64 {
	if c == nil {
		return 0
	}
	return c.Dwell()
}

func flightAverage(keys []float64) float64 {
	if len(keys) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(keys); i++ {
		sum += keys[i] - keys[i-1]
	}
	return sum / float64(len(keys)-1)
}

// stdDev is the population standard deviation.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
