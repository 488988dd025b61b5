// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/classifier"
	"github.com/tomtom215/botwatch/internal/gate"
	"github.com/tomtom215/botwatch/internal/telemetry"
	"github.com/tomtom215/botwatch/internal/validation"
)

// LogResponse acknowledges a trap event.
type LogResponse struct {
	Status string `json:"status"`
}

// PredictFeatures is the features_calculated object of a prediction.
type PredictFeatures struct {
	Efficiency float64         `json:"efficiency"`
	Curvature  float64         `json:"curvature"`
	Note       string          `json:"note"`
	RawPath    json.RawMessage `json:"raw_path"`
}

// PredictResponse is the verdict on a telemetry submission.
type PredictResponse struct {
	IsBot              bool            `json:"is_bot"`
	ConfidenceScore    float64         `json:"confidence_score"`
	Verdict            string          `json:"verdict"`
	FeaturesCalculated PredictFeatures `json:"features_calculated"`
}

// Log records a verdict reported by a client-side trap.
//
// POST /log
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	var ev gate.TrapEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
		return
	}

	if _, err := h.engine.LogTrap(r.Context(), &ev, clientIP(r)); err != nil {
		h.respondGateError(w, r, err)
		return
	}

	// A store failure was already logged and counted by the engine.
	writeJSON(w, http.StatusOK, &LogResponse{Status: "logged"})
}

// Predict classifies a telemetry submission.
//
// POST /predict
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var payload telemetry.Payload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
		return
	}
	if err := validation.ValidateStruct(&payload); err != nil {
		h.respondGateError(w, r, err)
		return
	}

	result, err := h.engine.Classify(r.Context(), &payload, clientIP(r))
	if err != nil {
		h.respondGateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &PredictResponse{
		IsBot:           result.Decision.IsBot(),
		ConfidenceScore: result.Decision.Score,
		Verdict:         string(result.Decision.Verdict),
		FeaturesCalculated: PredictFeatures{
			Efficiency: result.Features.Efficiency(),
			Curvature:  result.Features.Curvature(),
			Note:       result.Decision.Reason,
			RawPath:    result.RawPath,
		},
	})
}

// respondGateError maps engine errors onto the error envelope.
func (h *Handler) respondGateError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *validation.RequestValidationError
	var telErr *telemetry.ValidationError

	switch {
	case errors.As(err, &reqErr):
		apiErr := reqErr.ToAPIError()
		respondErrorDetails(w, r, http.StatusBadRequest, &APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil)
	case errors.As(err, &telErr):
		respondErrorDetails(w, r, http.StatusBadRequest, &APIError{
			Code:    ErrCodeValidation,
			Message: telErr.Error(),
			Details: map[string]interface{}{"field": telErr.Field, "reason": telErr.Reason},
		}, nil)
	case errors.Is(err, classifier.ErrUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeClassifierUnavailable,
			"Classifier is unavailable", err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"Failed to process submission", err)
	}
}
