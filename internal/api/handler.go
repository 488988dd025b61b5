// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package api serves the gate's HTTP surface: trap and telemetry ingestion,
// the operator dashboard and health checks.
package api

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/analytics"
	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/auth"
	"github.com/tomtom215/botwatch/internal/gate"
)

// maxBodyBytes bounds request bodies. A full-size mouse path fits well
// within it.
const maxBodyBytes = 2 << 20

var errEmptyBody = errors.New("request body is empty")

// Handler holds the dependencies of every endpoint.
type Handler struct {
	engine     *gate.Engine
	aggregator *analytics.Aggregator
	store      attempts.Store
	auth       *auth.Middleware
	websocket  http.Handler
	startTime  time.Time
}

// Deps are the collaborators a Handler needs. Websocket may be nil, which
// disables the live feed.
type Deps struct {
	Engine     *gate.Engine
	Aggregator *analytics.Aggregator
	Store      attempts.Store
	Auth       *auth.Middleware
	Websocket  http.Handler
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		engine:     deps.Engine,
		aggregator: deps.Aggregator,
		store:      deps.Store,
		auth:       deps.Auth,
		websocket:  deps.Websocket,
		startTime:  time.Now(),
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// replaced with the forwarded client address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
