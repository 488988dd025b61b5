// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrLoginUnavailable is returned when the mode does not issue tokens.
var ErrLoginUnavailable = errors.New("token login is not enabled")

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse carries an issued token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies credentials and issues a token. It returns
// ErrInvalidCredentials on a mismatch and ErrLoginUnavailable outside jwt
// mode.
func (m *Middleware) Login(req *LoginRequest) (*LoginResponse, error) {
	if m.mode != ModeJWT {
		return nil, ErrLoginUnavailable
	}
	if !m.basic.Verify(req.Username, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := m.jwt.GenerateToken(req.Username, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResponse{Token: token, ExpiresAt: expires}, nil
}

// SetTokenCookie stores resp as an HTTP-only cookie scoped to /admin.
func SetTokenCookie(w http.ResponseWriter, r *http.Request, resp *LoginResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    resp.Token,
		Path:     "/admin",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
