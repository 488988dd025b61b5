// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package database

import (
	"context"
	"fmt"
	"time"
)

// AttemptsTable is the append-only attempt log.
const AttemptsTable = "login_attempts"

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the sequence, table and indexes. Every statement is
// idempotent so it runs on each start.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS login_attempts_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS login_attempts (
			id BIGINT PRIMARY KEY DEFAULT nextval('login_attempts_id_seq'),
			created_at TIMESTAMP NOT NULL,
			verdict VARCHAR NOT NULL,
			confidence_score DOUBLE NOT NULL,
			trigger_source VARCHAR NOT NULL,
			fail_reason VARCHAR NOT NULL DEFAULT '',
			mouse_path VARCHAR,
			window_dims VARCHAR NOT NULL DEFAULT 'Unknown',
			ip_address VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_verdict ON login_attempts(verdict)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_trigger_source ON login_attempts(trigger_source)`,
	}
}
