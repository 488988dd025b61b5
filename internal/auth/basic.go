// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package auth protects the admin surface with HTTP Basic credentials or
// HS256 bearer tokens.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances login latency against brute-force cost.
const bcryptCost = 12

// ErrInvalidCredentials is returned for any credential mismatch.
var ErrInvalidCredentials = errors.New("invalid username or password")

// BasicAuthManager verifies the admin username and password.
type BasicAuthManager struct {
	username     string
	passwordHash []byte
}

// NewBasicAuthManager hashes password once so requests only pay for a
// compare.
func NewBasicAuthManager(username, password string) (*BasicAuthManager, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &BasicAuthManager{
		username:     username,
		passwordHash: hash,
	}, nil
}

// ValidateCredentials checks a "Basic ..." Authorization header and returns
// the username on success.
func (m *BasicAuthManager) ValidateCredentials(authHeader string) (string, error) {
	encoded, ok := strings.CutPrefix(authHeader, "Basic ")
	if !ok {
		return "", fmt.Errorf("invalid authorization header format")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode credentials")
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", fmt.Errorf("invalid credentials format")
	}

	if !m.Verify(username, password) {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// Verify compares credentials. Both comparisons always run so timing does
// not reveal which one failed.
func (m *BasicAuthManager) Verify(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}

// WWWAuthenticate is the challenge sent with 401 responses.
func (m *BasicAuthManager) WWWAuthenticate() string {
	return `Basic realm="Botwatch Admin", charset="UTF-8"`
}
