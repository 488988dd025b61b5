// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

/*
Package config loads Botwatch configuration.

Loading order (Koanf v2), later layers win:
 1. Defaults: built-in values from defaultConfig
 2. Config file: optional YAML, found through CONFIG_PATH or DefaultConfigPaths
 3. Environment variables: mapped explicitly in envTransformFunc

Example config.yaml:

	server:
	  port: 5000
	database:
	  backend: duckdb
	  path: /data/botwatch.duckdb
	classifier:
	  mode: artifact
	  artifact_path: /data/model.json
	analytics:
	  tz_offset: 5h30m
	security:
	  auth_mode: basic
	  admin_username: ops
*/
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Verdict    VerdictConfig    `koanf:"verdict"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Security   SecurityConfig   `koanf:"security"`
	Events     EventsConfig     `koanf:"events"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// Storage backends accepted by DatabaseConfig.Backend.
const (
	BackendDuckDB = "duckdb"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// DatabaseConfig selects and tunes the attempt store.
type DatabaseConfig struct {
	Backend   string `koanf:"backend"`
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()

	BadgerPath        string `koanf:"badger_path"`
	BadgerSyncWrites  bool   `koanf:"badger_sync_writes"`
	BadgerCompression bool   `koanf:"badger_compression"`
}

// ClassifierConfig configures the bot classifier.
type ClassifierConfig struct {
	Mode               string        `koanf:"mode"` // artifact, remote, disabled
	ArtifactPath       string        `koanf:"artifact_path"`
	RemoteURL          string        `koanf:"remote_url"`
	Timeout            time.Duration `koanf:"timeout"`
	RateLimit          float64       `koanf:"rate_limit"` // remote calls per second, 0 = unlimited
	Burst              int           `koanf:"burst"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

// VerdictConfig holds the inclusive SUSPICIOUS confidence band.
type VerdictConfig struct {
	SuspiciousLow  float64 `koanf:"suspicious_low"`
	SuspiciousHigh float64 `koanf:"suspicious_high"`
}

// AnalyticsConfig shapes the dashboard payload.
type AnalyticsConfig struct {
	// TZOffset is added to UTC timestamps before hours and dates are taken.
	TZOffset    time.Duration `koanf:"tz_offset"`
	RecentLimit int           `koanf:"recent_limit"`
	VolumeDays  int           `koanf:"volume_days"`
}

// SecurityConfig holds admin authentication, rate limiting and CORS settings.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"` // none, basic, jwt
	JWTSecret         string        `koanf:"jwt_secret"`
	JWTTTL            time.Duration `koanf:"jwt_ttl"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPassword     string        `koanf:"admin_password"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// Event bus backends accepted by EventsConfig.Backend.
const (
	EventsChannel = "channel"
	EventsNATS    = "nats"
)

// EventsConfig configures attempt event publishing.
type EventsConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Backend          string        `koanf:"backend"`
	Topic            string        `koanf:"topic"`
	BufferSize       int64         `koanf:"buffer_size"`
	NATSURL          string        `koanf:"nats_url"`
	NATSEmbedded     bool          `koanf:"nats_embedded"`
	NATSHost         string        `koanf:"nats_host"`
	NATSPort         int           `koanf:"nats_port"`
	QueueGroup       string        `koanf:"queue_group"`       // empty: every instance sees every event
	SubscribersCount int           `koanf:"subscribers_count"` // > 1 requires QueueGroup
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// Load reads configuration from defaults, the optional config file and the
// environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
