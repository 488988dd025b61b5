// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

/*
Package attempts is the append-only log of verdicts.

Every submission produces exactly one Record. Records are never updated or
deleted. The log backs the operator dashboard through a small set of grouping
queries.

Three backends implement Store:

  - DuckDBStore: the default, a DuckDB table with a sequence-assigned id
  - BadgerStore: an embedded key-value log for single-binary deployments
  - MemoryStore: process-local, used by tests and ephemeral runs

Timezone handling is shared by every backend. Timestamps are stored in UTC and
shifted with Localize before the hour or date is taken, never after.
*/
package attempts

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/verdict"
)

// DefaultWindowDims is recorded when the client did not report screen size.
const DefaultWindowDims = "Unknown"

// Record is one logged submission.
type Record struct {
	ID              int64                 `json:"id"`
	Timestamp       time.Time             `json:"timestamp"`
	Verdict         verdict.Verdict       `json:"verdict"`
	ConfidenceScore float64               `json:"confidence_score"`
	TriggerSource   verdict.TriggerSource `json:"trigger_source"`
	FailReason      string                `json:"fail_reason"`
	MousePath       json.RawMessage       `json:"mouse_path,omitempty"`
	WindowDims      string                `json:"window_dims"`
	IPAddress       string                `json:"ip_address,omitempty"`
}

// Count is a named group size.
type Count struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// HourBucket is the number of bot records in one local hour of the day.
type HourBucket struct {
	Hour int   `json:"hour"`
	Bots int64 `json:"bots"`
}

// DayVolume is the bot and human count for one local calendar date.
type DayVolume struct {
	Date   string `json:"date"`
	Bots   int64  `json:"bots"`
	Humans int64  `json:"humans"`
}

// Store is an append-only attempt log.
type Store interface {
	// Insert writes rec, assigning ID and a UTC Timestamp when zero.
	Insert(ctx context.Context, rec *Record) (int64, error)

	// Recent returns up to limit records, newest id first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Get returns the record with id, or nil, nil when absent.
	Get(ctx context.Context, id int64) (*Record, error)

	CountByTriggerSource(ctx context.Context) ([]Count, error)
	CountFailReasons(ctx context.Context, v verdict.Verdict) ([]Count, error)

	// HourlyBotHistogram counts BOT records per local hour. All 24 buckets
	// are present.
	HourlyBotHistogram(ctx context.Context, offset time.Duration) ([24]HourBucket, error)

	// DailyVolume returns per-date bot and human counts for the most recent
	// days local dates that have records, newest first.
	DailyVolume(ctx context.Context, offset time.Duration, days int) ([]DayVolume, error)

	Ping(ctx context.Context) error
	Close() error
}

// prepare fills the store-assigned defaults on rec.
func prepare(rec *Record, now func() time.Time) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.WindowDims == "" {
		rec.WindowDims = DefaultWindowDims
	}
}

// sortCounts orders by value descending, then name ascending.
func sortCounts(counts []Count) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Value != counts[j].Value {
			return counts[i].Value > counts[j].Value
		}
		return counts[i].Name < counts[j].Name
	})
}

func countsFromMap(m map[string]int64) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Value: n})
	}
	sortCounts(out)
	return out
}
