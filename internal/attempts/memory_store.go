// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package attempts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/botwatch/internal/verdict"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("attempt store is closed")

// MemoryStore keeps records in a slice ordered by id.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	closed  bool
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, rec *Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	prepare(rec, s.now)
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, *rec)
	return rec.ID, nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []Record{}, nil
	}

	out := make([]Record, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	// IDs are dense from 1.
	if id < 1 || id > int64(len(s.records)) {
		return nil, nil
	}
	rec := s.records[id-1]
	return &rec, nil
}

// CountByTriggerSource implements Store.
func (s *MemoryStore) CountByTriggerSource(_ context.Context) ([]Count, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	m := make(map[string]int64)
	for i := range s.records {
		m[string(s.records[i].TriggerSource)]++
	}
	return countsFromMap(m), nil
}

// CountFailReasons implements Store.
func (s *MemoryStore) CountFailReasons(_ context.Context, v verdict.Verdict) ([]Count, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	m := make(map[string]int64)
	for i := range s.records {
		if s.records[i].Verdict == v {
			m[s.records[i].FailReason]++
		}
	}
	return countsFromMap(m), nil
}

// HourlyBotHistogram implements Store.
func (s *MemoryStore) HourlyBotHistogram(_ context.Context, offset time.Duration) ([24]HourBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := newHistogram(offset)
	if s.closed {
		return h.buckets, ErrClosed
	}
	for i := range s.records {
		if s.records[i].Verdict == verdict.Bot {
			h.add(s.records[i].Timestamp)
		}
	}
	return h.buckets, nil
}

// DailyVolume implements Store.
func (s *MemoryStore) DailyVolume(_ context.Context, offset time.Duration, days int) ([]DayVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	v := newVolume(offset)
	for i := range s.records {
		v.add(s.records[i].Timestamp, s.records[i].Verdict)
	}
	return v.newest(days), nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
