// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateClassifier,
		c.validateVerdict,
		c.validateAnalytics,
		c.validateSecurity,
		c.validateEvents,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// validateServer validates server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Backend {
	case BackendDuckDB:
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when STORE_BACKEND is duckdb")
		}
	case BackendBadger:
		if c.Database.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required when STORE_BACKEND is badger")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: duckdb, badger, memory")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Mode {
	case "artifact", "disabled":
	case "remote":
		if !strings.HasPrefix(c.Classifier.RemoteURL, "http://") && !strings.HasPrefix(c.Classifier.RemoteURL, "https://") {
			return fmt.Errorf("CLASSIFIER_URL must be an http(s) URL when CLASSIFIER_MODE is remote")
		}
	default:
		return fmt.Errorf("CLASSIFIER_MODE must be one of: artifact, remote, disabled")
	}
	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}
	if c.Classifier.RateLimit < 0 {
		return fmt.Errorf("CLASSIFIER_RATE_LIMIT must not be negative")
	}
	return nil
}

// validateVerdict requires 0 <= low <= high <= 100.
func (c *Config) validateVerdict() error {
	low, high := c.Verdict.SuspiciousLow, c.Verdict.SuspiciousHigh
	if low < 0 || high > 100 || low > high {
		return fmt.Errorf("SUSPICIOUS_LOW and SUSPICIOUS_HIGH must satisfy 0 <= low <= high <= 100 (got %v, %v)", low, high)
	}
	return nil
}

// maxTZOffset covers every real-world UTC offset (-12:00 to +14:00).
const maxTZOffset = 14 * time.Hour

// The dashboard shows at most 20 live entries and one week of volume.
const (
	maxRecentLimit = 20
	maxVolumeDays  = 7
)

func (c *Config) validateAnalytics() error {
	if c.Analytics.TZOffset < -maxTZOffset || c.Analytics.TZOffset > maxTZOffset {
		return fmt.Errorf("DASHBOARD_TZ_OFFSET must be within +/-14h (got %v)", c.Analytics.TZOffset)
	}
	if c.Analytics.RecentLimit < 1 || c.Analytics.RecentLimit > maxRecentLimit {
		return fmt.Errorf("DASHBOARD_RECENT_LIMIT must be between 1 and %d", maxRecentLimit)
	}
	if c.Analytics.VolumeDays < 1 || c.Analytics.VolumeDays > maxVolumeDays {
		return fmt.Errorf("DASHBOARD_VOLUME_DAYS must be between 1 and %d", maxVolumeDays)
	}
	return nil
}

// validateSecurity validates security configuration
func (c *Config) validateSecurity() error {
	if err := c.validateAuthMode(); err != nil {
		return err
	}
	if err := c.validateCORS(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}

	switch c.Security.AuthMode {
	case "jwt":
		return c.validateJWTAuth()
	case "basic":
		return c.validateAdminCredentials("basic")
	}
	return nil
}

// validAuthModes defines the allowed authentication modes
var validAuthModes = map[string]bool{
	"none":  true,
	"basic": true,
	"jwt":   true,
}

func (c *Config) validateAuthMode() error {
	if !validAuthModes[c.Security.AuthMode] {
		return fmt.Errorf("AUTH_MODE must be one of: none, basic, jwt")
	}
	if c.Security.AuthMode == "none" && c.IsProduction() {
		return fmt.Errorf("AUTH_MODE=none is not allowed when ENVIRONMENT=production. " +
			"Set AUTH_MODE to basic or jwt, or use ENVIRONMENT=development for testing")
	}
	return nil
}

// validateCORS rejects wildcard origins in production when the admin API is
// protected, since credentials could then be replayed from any site.
func (c *Config) validateCORS() error {
	if c.Security.AuthMode != "none" && c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production with authentication enabled. " +
			"Set specific origins, for example CORS_ORIGINS=https://login.example.com")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS reports a wildcard CORS policy alongside admin auth.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.Security.AuthMode != "none" && c.hasWildcardCORS()
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

func (c *Config) validateJWTAuth() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	if c.Security.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	return c.validateAdminCredentials("jwt")
}

func (c *Config) validateAdminCredentials(authMode string) error {
	if c.Security.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME is required when AUTH_MODE is %s", authMode)
	}
	if c.Security.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when AUTH_MODE is %s", authMode)
	}
	if containsPlaceholder(c.Security.AdminPassword) {
		return fmt.Errorf("ADMIN_PASSWORD contains a placeholder value - set a secure password")
	}
	if err := DefaultPasswordPolicy().ValidateWithError(c.Security.AdminPassword, c.Security.AdminUsername); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD: %w", err)
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC must not be empty")
	}
	switch c.Events.Backend {
	case EventsChannel:
	case EventsNATS:
		if c.Events.NATSEmbedded {
			if c.Events.NATSPort < 1 || c.Events.NATSPort > 65535 {
				return fmt.Errorf("NATS_PORT must be between 1 and 65535")
			}
		} else if !strings.HasPrefix(c.Events.NATSURL, "nats://") {
			return fmt.Errorf("NATS_URL must start with nats:// when EVENTS_BACKEND is nats")
		}
		if c.Events.SubscribersCount < 1 {
			return fmt.Errorf("NATS_SUBSCRIBERS must be at least 1")
		}
		if c.Events.SubscribersCount > 1 && c.Events.QueueGroup == "" {
			return fmt.Errorf("NATS_SUBSCRIBERS > 1 requires NATS_QUEUE_GROUP")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be one of: channel, nats")
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns flag values copied from sample configs.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"YOUR_PASSWORD",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
