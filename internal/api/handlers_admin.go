// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/botwatch/internal/auth"
	"github.com/tomtom215/botwatch/internal/validation"
)

// Stats returns the dashboard payload. The body is the dashboard object
// itself with its five sections at the top level; only errors use the
// envelope.
//
// GET /admin/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.aggregator.Dashboard(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeDatabaseError,
			"Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// Attempt returns one full record, including its mouse path, for replay.
//
// GET /admin/attempts/{id}
func (h *Handler) Attempt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Attempt id must be a positive integer", nil)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeDatabaseError,
			"Failed to load attempt", err)
		return
	}
	if rec == nil {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Attempt not found", nil)
		return
	}
	respondData(w, r, rec, start)
}

// Login exchanges admin credentials for a token.
//
// POST /admin/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		h.respondGateError(w, r, err)
		return
	}

	resp, err := h.auth.Login(&req)
	switch {
	case errors.Is(err, auth.ErrLoginUnavailable):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Token login is not enabled", nil)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid username or password",
			errors.New("login rejected for "+req.Username))
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to issue token", err)
		return
	}

	auth.SetTokenCookie(w, r, resp)
	respondData(w, r, resp, start)
}

// WebSocket upgrades to the live attempt feed.
//
// GET /admin/ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.websocket == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Live feed is disabled", nil)
		return
	}
	h.websocket.ServeHTTP(w, r)
}
