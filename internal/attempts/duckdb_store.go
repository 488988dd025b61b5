// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package attempts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/botwatch/internal/database"
	"github.com/tomtom215/botwatch/internal/database/query"
	"github.com/tomtom215/botwatch/internal/metrics"
	"github.com/tomtom215/botwatch/internal/verdict"
)

const duckdbBackend = "duckdb"

const selectColumns = `id, created_at, verdict, confidence_score, trigger_source,
	fail_reason, mouse_path, window_dims, ip_address`

// DuckDBStore persists attempts in the login_attempts table.
type DuckDBStore struct {
	db  *database.DB
	now func() time.Time
}

// NewDuckDBStore wraps an open database.
func NewDuckDBStore(db *database.DB) *DuckDBStore {
	return &DuckDBStore{db: db, now: time.Now}
}

// observe records a store call. err points at the named result so the
// deferred call sees the final value.
func observe(backend, op string, start time.Time, err *error) {
	metrics.RecordStoreOperation(backend, op, time.Since(start), *err)
}

// Insert implements Store.
func (s *DuckDBStore) Insert(ctx context.Context, rec *Record) (id int64, err error) {
	defer observe(duckdbBackend, "insert", time.Now(), &err)

	prepare(rec, s.now)

	err = database.WithRetry(ctx, func() error {
		return s.db.Conn().QueryRowContext(ctx, `
			INSERT INTO login_attempts (
				created_at, verdict, confidence_score, trigger_source,
				fail_reason, mouse_path, window_dims, ip_address
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			rec.Timestamp,
			string(rec.Verdict),
			rec.ConfidenceScore,
			string(rec.TriggerSource),
			rec.FailReason,
			nullString(string(rec.MousePath)),
			rec.WindowDims,
			nullString(rec.IPAddress),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert attempt: %w", err)
	}

	rec.ID = id
	return id, nil
}

// Recent implements Store.
func (s *DuckDBStore) Recent(ctx context.Context, limit int) (out []Record, err error) {
	defer observe(duckdbBackend, "recent", time.Now(), &err)

	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT `+selectColumns+` FROM login_attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent attempts: %w", err)
	}
	defer rows.Close()

	out = make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, id int64) (rec *Record, err error) {
	defer observe(duckdbBackend, "get", time.Now(), &err)

	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM login_attempts WHERE id = ?`, id)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// CountByTriggerSource implements Store.
func (s *DuckDBStore) CountByTriggerSource(ctx context.Context) (out []Count, err error) {
	defer observe(duckdbBackend, "count_trigger_source", time.Now(), &err)
	return s.countByColumn(ctx, "trigger_source", query.NewWhereBuilder())
}

// CountFailReasons implements Store.
func (s *DuckDBStore) CountFailReasons(ctx context.Context, v verdict.Verdict) (out []Count, err error) {
	defer observe(duckdbBackend, "count_fail_reason", time.Now(), &err)
	return s.countByColumn(ctx, "fail_reason", query.NewWhereBuilder().AddVerdicts(string(v)))
}

// countByColumn groups on a fixed column name. column is never user input.
func (s *DuckDBStore) countByColumn(ctx context.Context, column string, wb *query.WhereBuilder) ([]Count, error) {
	where, args := wb.BuildWithPrefix()
	q := fmt.Sprintf(`SELECT %s, COUNT(*) AS cnt FROM login_attempts %s
		GROUP BY %s ORDER BY cnt DESC, %s ASC`, column, where, column, column)

	rows, err := s.db.Conn().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by %s: %w", column, err)
	}
	defer rows.Close()

	out := []Count{}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Name, &c.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Re-sort in Go so byte-order ties match the other backends.
	sortCounts(out)
	return out, nil
}

// HourlyBotHistogram implements Store. Timestamps are read raw and shifted
// with Localize so the offset is applied before the hour is taken.
func (s *DuckDBStore) HourlyBotHistogram(ctx context.Context, offset time.Duration) (buckets [24]HourBucket, err error) {
	defer observe(duckdbBackend, "hourly_histogram", time.Now(), &err)

	h := newHistogram(offset)
	where, args := query.NewWhereBuilder().AddVerdicts(string(verdict.Bot)).BuildWithPrefix()

	rows, err := s.db.Conn().QueryContext(ctx, `SELECT created_at FROM login_attempts `+where, args...)
	if err != nil {
		return h.buckets, fmt.Errorf("failed to query bot timestamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return h.buckets, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		h.add(ts)
	}
	return h.buckets, rows.Err()
}

// DailyVolume implements Store.
func (s *DuckDBStore) DailyVolume(ctx context.Context, offset time.Duration, days int) (out []DayVolume, err error) {
	defer observe(duckdbBackend, "daily_volume", time.Now(), &err)

	rows, err := s.db.Conn().QueryContext(ctx, `SELECT created_at, verdict FROM login_attempts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume: %w", err)
	}
	defer rows.Close()

	v := newVolume(offset)
	for rows.Next() {
		var (
			ts time.Time
			vd string
		)
		if err := rows.Scan(&ts, &vd); err != nil {
			return nil, fmt.Errorf("failed to scan volume row: %w", err)
		}
		v.add(ts, verdict.Verdict(vd))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return v.newest(days), nil
}

// Ping implements Store.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close implements Store.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		vd, src   string
		mousePath sql.NullString
		ip        sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.Timestamp, &vd, &rec.ConfidenceScore, &src,
		&rec.FailReason, &mousePath, &rec.WindowDims, &ip,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan attempt: %w", err)
	}

	rec.Timestamp = rec.Timestamp.UTC()
	rec.Verdict = verdict.Verdict(vd)
	rec.TriggerSource = verdict.TriggerSource(src)
	if mousePath.Valid && mousePath.String != "" {
		rec.MousePath = []byte(mousePath.String)
	}
	rec.IPAddress = ip.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
