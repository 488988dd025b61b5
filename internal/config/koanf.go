// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/botwatch/config.yaml",
	"/etc/botwatch/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Backend:    BackendDuckDB,
			Path:       "/data/botwatch.duckdb",
			MaxMemory:  "512MB",
			Threads:    0,
			BadgerPath: "/data/attempts",
		},
		Classifier: ClassifierConfig{
			Mode:               "artifact",
			ArtifactPath:       "/data/model.json",
			Timeout:            2 * time.Second,
			RateLimit:          0,
			Burst:              10,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Verdict: VerdictConfig{
			SuspiciousLow:  30,
			SuspiciousHigh: 70,
		},
		Analytics: AnalyticsConfig{
			TZOffset:    5*time.Hour + 30*time.Minute,
			RecentLimit: 20,
			VolumeDays:  7,
		},
		Security: SecurityConfig{
			AuthMode:        "none",
			JWTTTL:          12 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Events: EventsConfig{
			Enabled:          true,
			Backend:          EventsChannel,
			Topic:            "attempt.recorded",
			BufferSize:       256,
			NATSURL:          "nats://127.0.0.1:4222",
			NATSEmbedded:     false,
			NATSHost:         "127.0.0.1",
			NATSPort:         4222,
			QueueGroup:       "",
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// sliceConfigPaths lists config paths that accept comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns CONFIG_PATH when it exists, else the first existing
// default path, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// processSliceFields splits comma-separated strings from the environment.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Database
	"store_backend":      "database.backend",
	"duckdb_path":        "database.path",
	"duckdb_max_memory":  "database.max_memory",
	"duckdb_threads":     "database.threads",
	"badger_path":        "database.badger_path",
	"badger_sync_writes": "database.badger_sync_writes",
	"badger_compression": "database.badger_compression",

	// Classifier
	"classifier_mode":                 "classifier.mode",
	"model_path":                      "classifier.artifact_path",
	"classifier_url":                  "classifier.remote_url",
	"classifier_timeout":              "classifier.timeout",
	"classifier_rate_limit":           "classifier.rate_limit",
	"classifier_burst":                "classifier.burst",
	"classifier_breaker_max_failures": "classifier.breaker_max_failures",
	"classifier_breaker_open_timeout": "classifier.breaker_open_timeout",

	// Verdict
	"suspicious_low":  "verdict.suspicious_low",
	"suspicious_high": "verdict.suspicious_high",

	// Analytics
	"dashboard_tz_offset":    "analytics.tz_offset",
	"dashboard_recent_limit": "analytics.recent_limit",
	"dashboard_volume_days":  "analytics.volume_days",

	// Security
	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"jwt_ttl":             "security.jwt_ttl",
	"admin_username":      "security.admin_username",
	"admin_password":      "security.admin_password",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Events
	"events_enabled":        "events.enabled",
	"events_backend":        "events.backend",
	"events_topic":          "events.topic",
	"events_buffer_size":    "events.buffer_size",
	"nats_url":              "events.nats_url",
	"nats_embedded":         "events.nats_embedded",
	"nats_host":             "events.nats_host",
	"nats_port":             "events.nats_port",
	"nats_queue_group":      "events.queue_group",
	"nats_subscribers":      "events.subscribers_count",
	"nats_ack_wait_timeout": "events.ack_wait_timeout",
	"nats_close_timeout":    "events.close_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its config path. Unmapped
// variables return "" and are skipped so unrelated environment never leaks
// into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
