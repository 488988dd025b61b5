// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthLive reports that the process is up.
//
// GET /health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, time.Now())
}

// HealthReady reports whether the attempt store answers. The classifier is
// reported but does not gate readiness, because trap logging works without
// it.
//
// GET /health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	storeErr := h.store.Ping(ctx)
	body := map[string]interface{}{
		"ready":            storeErr == nil,
		"store_ready":      storeErr == nil,
		"classifier_ready": h.engine.ClassifierReady(),
	}

	if storeErr != nil {
		respondErrorDetails(w, r, http.StatusServiceUnavailable, &APIError{
			Code:    ErrCodeServiceUnavailable,
			Message: "Attempt store is not reachable",
			Details: body,
		}, storeErr)
		return
	}
	respondData(w, r, body, start)
}
