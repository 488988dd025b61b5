// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botwatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botwatch_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botwatch_api_active_requests",
			Help: "Number of in-flight API requests",
		},
	)

	// Verdict Metrics
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botwatch_verdicts_total",
			Help: "Verdicts issued, by verdict and trigger source",
		},
		[]string{"verdict", "trigger_source"},
	)

	ConfidenceScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botwatch_confidence_score",
			Help:    "Distribution of confidence scores (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"trigger_source"},
	)

	// Classifier Metrics
	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "botwatch_classifier_duration_seconds",
			Help:    "Classifier inference latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	ClassifierErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botwatch_classifier_errors_total",
			Help: "Classifier failures by reason",
		},
		[]string{"reason"}, // "breaker_open", "timeout", "inference"
	)

	ClassifierBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botwatch_classifier_breaker_state",
			Help: "Classifier circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botwatch_store_operation_duration_seconds",
			Help:    "Attempt store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botwatch_store_operation_errors_total",
			Help: "Attempt store operation errors",
		},
		[]string{"backend", "operation"},
	)

	StoreWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botwatch_store_write_failures_total",
			Help: "Verdicts returned to the client that could not be persisted",
		},
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botwatch_events_published_total",
			Help: "Attempt events published to the event bus",
		},
		[]string{"result"}, // "ok", "error"
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botwatch_websocket_clients",
			Help: "Connected live dashboard clients",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordVerdict records an issued verdict.
func RecordVerdict(verdict, source string, score float64) {
	VerdictsTotal.WithLabelValues(verdict, source).Inc()
	ConfidenceScore.WithLabelValues(source).Observe(score)
}

// RecordClassifierCall records inference latency and, on failure, its reason.
func RecordClassifierCall(duration time.Duration, failureReason string) {
	ClassifierDuration.Observe(duration.Seconds())
	if failureReason != "" {
		ClassifierErrors.WithLabelValues(failureReason).Inc()
	}
}

// RecordStoreOperation records a store call.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordEventPublish records an event bus publish.
func RecordEventPublish(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("error").Inc()
		return
	}
	EventsPublished.WithLabelValues("ok").Inc()
}
