// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package attempts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/logging"
	"github.com/tomtom215/botwatch/internal/verdict"
)

const badgerBackend = "badger"

const (
	prefixAttempt = "attempt:"
	keySequence   = "seq:attempt"

	// sequenceBandwidth is how many ids are leased per disk write.
	sequenceBandwidth = 64
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	Path        string
	InMemory    bool
	SyncWrites  bool
	Compression bool
}

// BadgerStore keeps attempts in an embedded Badger database, keyed by
// big-endian id so iteration order is id order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerStore opens or creates the store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease id sequence: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Badger attempt store opened")

	return &BadgerStore{db: db, seq: seq, now: time.Now}, nil
}

func attemptKey(id int64) []byte {
	key := make([]byte, len(prefixAttempt)+8)
	copy(key, prefixAttempt)
	binary.BigEndian.PutUint64(key[len(prefixAttempt):], uint64(id))
	return key
}

// acquire holds the read lock until release is called, so Close waits for
// in-flight operations before it releases the sequence and the database.
func (s *BadgerStore) acquire() (release func(), err error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	return s.mu.RUnlock, nil
}

// Insert implements Store.
func (s *BadgerStore) Insert(_ context.Context, rec *Record) (id int64, err error) {
	defer observe(badgerBackend, "insert", time.Now(), &err)

	release, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	next, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate attempt id: %w", err)
	}

	prepare(rec, s.now)
	rec.ID = int64(next) + 1

	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode attempt: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(attemptKey(rec.ID), data))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write attempt: %w", err)
	}
	return rec.ID, nil
}

// scan visits every record in id order, or reverse id order when reverse is
// set. Returning false from fn stops the iteration.
func (s *BadgerStore) scan(ctx context.Context, reverse bool, fn func(*Record) bool) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixAttempt)
		seek := prefix
		if reverse {
			seek = append([]byte(prefixAttempt), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", fmt.Sprintf("%x", it.Item().Key())).Msg("Skipping undecodable attempt")
				continue
			}
			if !fn(&rec) {
				return nil
			}
		}
		return nil
	})
}

// Recent implements Store.
func (s *BadgerStore) Recent(ctx context.Context, limit int) (out []Record, err error) {
	defer observe(badgerBackend, "recent", time.Now(), &err)

	out = []Record{}
	if limit <= 0 {
		release, err := s.acquire()
		if err != nil {
			return nil, err
		}
		release()
		return out, nil
	}
	err = s.scan(ctx, true, func(r *Record) bool {
		out = append(out, *r)
		return len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recent attempts: %w", err)
	}
	return out, nil
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, id int64) (rec *Record, err error) {
	defer observe(badgerBackend, "get", time.Now(), &err)

	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attemptKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &Record{}
			return json.Unmarshal(val, rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt %d: %w", id, err)
	}
	return rec, nil
}

// CountByTriggerSource implements Store.
func (s *BadgerStore) CountByTriggerSource(ctx context.Context) (out []Count, err error) {
	defer observe(badgerBackend, "count_trigger_source", time.Now(), &err)

	m := make(map[string]int64)
	err = s.scan(ctx, false, func(r *Record) bool {
		m[string(r.TriggerSource)]++
		return true
	})
	if err != nil {
		return nil, err
	}
	return countsFromMap(m), nil
}

// CountFailReasons implements Store.
func (s *BadgerStore) CountFailReasons(ctx context.Context, v verdict.Verdict) (out []Count, err error) {
	defer observe(badgerBackend, "count_fail_reason", time.Now(), &err)

	m := make(map[string]int64)
	err = s.scan(ctx, false, func(r *Record) bool {
		if r.Verdict == v {
			m[r.FailReason]++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return countsFromMap(m), nil
}

// HourlyBotHistogram implements Store.
func (s *BadgerStore) HourlyBotHistogram(ctx context.Context, offset time.Duration) (buckets [24]HourBucket, err error) {
	defer observe(badgerBackend, "hourly_histogram", time.Now(), &err)

	h := newHistogram(offset)
	err = s.scan(ctx, false, func(r *Record) bool {
		if r.Verdict == verdict.Bot {
			h.add(r.Timestamp)
		}
		return true
	})
	return h.buckets, err
}

// DailyVolume implements Store.
func (s *BadgerStore) DailyVolume(ctx context.Context, offset time.Duration, days int) (out []DayVolume, err error) {
	defer observe(badgerBackend, "daily_volume", time.Now(), &err)

	v := newVolume(offset)
	err = s.scan(ctx, false, func(r *Record) bool {
		v.add(r.Timestamp, r.Verdict)
		return true
	})
	if err != nil {
		return nil, err
	}
	return v.newest(days), nil
}

// Ping implements Store.
func (s *BadgerStore) Ping(_ context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close releases the id lease and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release attempt id sequence")
	}
	return s.db.Close()
}
