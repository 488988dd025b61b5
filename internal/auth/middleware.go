// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/botwatch/internal/config"
	"github.com/tomtom215/botwatch/internal/logging"
)

// Mode selects how admin requests are authenticated.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeBasic Mode = "basic"
	ModeJWT   Mode = "jwt"
)

// TokenCookie carries the admin token for browsers, which cannot set
// headers on websocket upgrades.
const TokenCookie = "botwatch_token"

type contextKey string

// ClaimsContextKey holds the *Claims of an authenticated request.
const ClaimsContextKey contextKey = "claims"

// UnauthorizedFunc writes a 401 response.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, message string)

// Middleware guards handlers according to the configured Mode.
type Middleware struct {
	mode         Mode
	basic        *BasicAuthManager
	jwt          *JWTManager
	unauthorized UnauthorizedFunc
}

// NewMiddleware builds the managers the mode needs. unauthorized may be
// nil, in which case a plain-text 401 is written.
func NewMiddleware(cfg *config.SecurityConfig, unauthorized UnauthorizedFunc) (*Middleware, error) {
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, _ *http.Request, message string) {
			http.Error(w, message, http.StatusUnauthorized)
		}
	}
	m := &Middleware{mode: Mode(cfg.AuthMode), unauthorized: unauthorized}

	switch m.mode {
	case ModeNone, "":
		m.mode = ModeNone
	case ModeBasic:
		basic, err := NewBasicAuthManager(cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create basic auth manager: %w", err)
		}
		m.basic = basic
	case ModeJWT:
		jwtManager, err := NewJWTManager(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT manager: %w", err)
		}
		basic, err := NewBasicAuthManager(cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create login credentials: %w", err)
		}
		m.jwt, m.basic = jwtManager, basic
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
	return m, nil
}

// Mode returns the active mode.
func (m *Middleware) Mode() Mode {
	return m.mode
}

// Require rejects unauthenticated requests and stores the caller's claims in
// the request context.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			claims *Claims
			err    error
		)
		switch m.mode {
		case ModeNone:
			next.ServeHTTP(w, r)
			return
		case ModeBasic:
			claims, err = m.authenticateBasic(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", m.basic.WWWAuthenticate())
			}
		case ModeJWT:
			claims, err = m.authenticateJWT(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="Botwatch Admin"`)
			}
		}

		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("admin authentication failed")
			m.unauthorized(w, r, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticateBasic(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("missing authorization header")
	}
	username, err := m.basic.ValidateCredentials(header)
	if err != nil {
		return nil, err
	}
	return &Claims{Username: username, Role: RoleAdmin}, nil
}

func (m *Middleware) authenticateJWT(r *http.Request) (*Claims, error) {
	token, err := extractToken(r)
	if err != nil {
		return nil, err
	}
	return m.jwt.ValidateToken(token)
}

// extractToken reads a Bearer header, falling back to the token cookie.
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		cookie, err := r.Cookie(TokenCookie)
		if err != nil || cookie.Value == "" {
			return "", fmt.Errorf("missing token")
		}
		return cookie.Value, nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return token, nil
}

// ClaimsFromContext returns the claims stored by Require, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}
