// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package attempts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/botwatch/internal/config"
	"github.com/tomtom215/botwatch/internal/database"
	"github.com/tomtom215/botwatch/internal/verdict"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			t.Helper()
			s := NewMemoryStore()
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"duckdb": func(t *testing.T) Store {
			t.Helper()
			db, err := database.New(&config.DatabaseConfig{Path: database.MemoryPath, MaxMemory: "256MB", Threads: 1})
			if err != nil {
				t.Fatalf("Failed to create test database: %v", err)
			}
			s := NewDuckDBStore(db)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"badger": func(t *testing.T) Store {
			t.Helper()
			s, err := OpenBadgerStore(BadgerConfig{InMemory: true})
			if err != nil {
				t.Fatalf("Failed to open badger store: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func mustInsert(t *testing.T, s Store, rec Record) int64 {
	t.Helper()
	id, err := s.Insert(context.Background(), &rec)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return id
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 5, day, hour, minute, 0, 0, time.UTC)
}

func TestStore_InsertAssignsDefaults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		before := time.Now().UTC().Add(-time.Second)

		rec := Record{Verdict: verdict.Bot, ConfidenceScore: 100, TriggerSource: verdict.Honeypot, FailReason: "filled"}
		id, err := s.Insert(context.Background(), &rec)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if id <= 0 || rec.ID != id {
			t.Errorf("id = %d, rec.ID = %d", id, rec.ID)
		}
		if rec.Timestamp.Before(before) || rec.Timestamp.Location() != time.UTC {
			t.Errorf("Timestamp = %v, want recent UTC", rec.Timestamp)
		}
		if rec.WindowDims != DefaultWindowDims {
			t.Errorf("WindowDims = %q, want %q", rec.WindowDims, DefaultWindowDims)
		}
	})
}

func TestStore_IDsIncrease(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		var last int64
		for i := 0; i < 5; i++ {
			id := mustInsert(t, s, Record{Verdict: verdict.Human, TriggerSource: verdict.MLModel})
			if id <= last {
				t.Fatalf("id %d not greater than %d", id, last)
			}
			last = id
		}
	})
}

func TestStore_RecentAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		path := []byte(`[[0,0,0],[10,5,40]]`)

		var ids []int64
		for i := 0; i < 25; i++ {
			ids = append(ids, mustInsert(t, s, Record{
				Timestamp:       at(1, 10, i),
				Verdict:         verdict.Human,
				ConfidenceScore: float64(i),
				TriggerSource:   verdict.MLModel,
				MousePath:       path,
				WindowDims:      "1920x1080",
				IPAddress:       "203.0.113.9",
			}))
		}

		recent, err := s.Recent(ctx, 20)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(recent) != 20 {
			t.Fatalf("len(Recent) = %d, want 20", len(recent))
		}
		if recent[0].ID != ids[24] || recent[19].ID != ids[5] {
			t.Errorf("Recent ids = %d..%d, want %d..%d", recent[0].ID, recent[19].ID, ids[24], ids[5])
		}

		got, err := s.Get(ctx, ids[3])
		if err != nil || got == nil {
			t.Fatalf("Get() = %v, %v", got, err)
		}
		if got.ConfidenceScore != 3 || got.WindowDims != "1920x1080" || got.IPAddress != "203.0.113.9" {
			t.Errorf("Get() = %+v", got)
		}
		if string(got.MousePath) != string(path) {
			t.Errorf("MousePath = %s, want %s", got.MousePath, path)
		}
		if !got.Timestamp.Equal(at(1, 10, 3)) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, at(1, 10, 3))
		}

		missing, err := s.Get(ctx, 99999)
		if err != nil || missing != nil {
			t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
		}

		empty, err := s.Recent(ctx, 0)
		if err != nil || len(empty) != 0 {
			t.Errorf("Recent(0) = %v, %v", empty, err)
		}
	})
}

func TestStore_Counts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed := []Record{
			{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot, FailReason: "Honeypot filled"},
			{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot, FailReason: "Honeypot filled"},
			{Verdict: verdict.Bot, TriggerSource: verdict.SpeedTrap, FailReason: "Too fast"},
			{Verdict: verdict.Bot, TriggerSource: verdict.GhostWindow, FailReason: "Ghost"},
			{Verdict: verdict.Human, TriggerSource: verdict.MLModel, FailReason: "Model Prediction (Prob: 0.10)"},
			{Verdict: verdict.Suspicious, TriggerSource: verdict.MLModel, FailReason: "Model Prediction (Prob: 0.50)"},
		}
		for _, r := range seed {
			mustInsert(t, s, r)
		}

		sources, err := s.CountByTriggerSource(ctx)
		if err != nil {
			t.Fatalf("CountByTriggerSource() error = %v", err)
		}
		wantSources := []Count{
			{"Honeypot", 2}, {"ML_Model", 2}, {"GhostWindow", 1}, {"SpeedTrap", 1},
		}
		assertCounts(t, sources, wantSources)

		reasons, err := s.CountFailReasons(ctx, verdict.Bot)
		if err != nil {
			t.Fatalf("CountFailReasons() error = %v", err)
		}
		assertCounts(t, reasons, []Count{{"Honeypot filled", 2}, {"Ghost", 1}, {"Too fast", 1}})
	})
}

func assertCounts(t *testing.T, got, want []Count) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("counts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("counts[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStore_EmptyAggregates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		counts, err := s.CountByTriggerSource(ctx)
		if err != nil || len(counts) != 0 {
			t.Errorf("CountByTriggerSource() = %v, %v", counts, err)
		}

		h, err := s.HourlyBotHistogram(ctx, ist)
		if err != nil {
			t.Fatalf("HourlyBotHistogram() error = %v", err)
		}
		for i, b := range h {
			if b.Hour != i || b.Bots != 0 {
				t.Errorf("bucket %d = %+v, want zero", i, b)
			}
		}

		vol, err := s.DailyVolume(ctx, ist, 7)
		if err != nil || len(vol) != 0 {
			t.Errorf("DailyVolume() = %v, %v", vol, err)
		}
	})
}

func TestStore_HourlyHistogramShiftsBeforeTruncation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		// 20:00 UTC is 01:30 local on the next day.
		mustInsert(t, s, Record{Timestamp: at(1, 20, 0), Verdict: verdict.Bot, TriggerSource: verdict.Honeypot})
		// 02:00 UTC is 07:30 local.
		mustInsert(t, s, Record{Timestamp: at(1, 2, 0), Verdict: verdict.Bot, TriggerSource: verdict.Honeypot})
		mustInsert(t, s, Record{Timestamp: at(1, 2, 10), Verdict: verdict.Bot, TriggerSource: verdict.SpeedTrap})
		// Humans are not counted.
		mustInsert(t, s, Record{Timestamp: at(1, 2, 0), Verdict: verdict.Human, TriggerSource: verdict.MLModel})

		h, err := s.HourlyBotHistogram(context.Background(), ist)
		if err != nil {
			t.Fatalf("HourlyBotHistogram() error = %v", err)
		}

		want := map[int]int64{1: 1, 7: 2}
		var total int64
		for i, b := range h {
			if b.Bots != want[i] {
				t.Errorf("hour %02d bots = %d, want %d", i, b.Bots, want[i])
			}
			total += b.Bots
		}
		if total != 3 {
			t.Errorf("histogram total = %d, want 3 (BOT count)", total)
		}
	})
}

func TestStore_DailyVolume(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		// Local 2026-05-02 01:30 despite the UTC date being May 1.
		mustInsert(t, s, Record{Timestamp: at(1, 20, 0), Verdict: verdict.Bot, TriggerSource: verdict.Honeypot})
		mustInsert(t, s, Record{Timestamp: at(1, 10, 0), Verdict: verdict.Human, TriggerSource: verdict.MLModel})
		mustInsert(t, s, Record{Timestamp: at(1, 11, 0), Verdict: verdict.Human, TriggerSource: verdict.MLModel})
		mustInsert(t, s, Record{Timestamp: at(1, 12, 0), Verdict: verdict.Suspicious, TriggerSource: verdict.MLModel})
		for d := 3; d <= 12; d++ {
			mustInsert(t, s, Record{Timestamp: at(d, 6, 0), Verdict: verdict.Bot, TriggerSource: verdict.SpeedTrap})
		}

		vol, err := s.DailyVolume(context.Background(), ist, 7)
		if err != nil {
			t.Fatalf("DailyVolume() error = %v", err)
		}
		if len(vol) != 7 {
			t.Fatalf("len = %d, want 7", len(vol))
		}
		if vol[0].Date != "2026-05-12" || vol[6].Date != "2026-05-06" {
			t.Errorf("dates = %s..%s", vol[0].Date, vol[6].Date)
		}
		for i := 1; i < len(vol); i++ {
			if vol[i-1].Date <= vol[i].Date {
				t.Errorf("not newest first at %d: %s then %s", i, vol[i-1].Date, vol[i].Date)
			}
		}

		all, err := s.DailyVolume(context.Background(), ist, 30)
		if err != nil {
			t.Fatalf("DailyVolume(30) error = %v", err)
		}
		byDate := make(map[string]DayVolume)
		for _, d := range all {
			byDate[d.Date] = d
		}
		if d := byDate["2026-05-02"]; d.Bots != 1 || d.Humans != 0 {
			t.Errorf("2026-05-02 = %+v, want 1 bot", d)
		}
		if d := byDate["2026-05-01"]; d.Bots != 0 || d.Humans != 2 {
			t.Errorf("2026-05-01 = %+v, want 2 humans", d)
		}
	})
}

func TestStore_ConcurrentInserts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		const workers, each = 8, 10

		var wg sync.WaitGroup
		errs := make(chan error, workers*each)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < each; i++ {
					rec := Record{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot, FailReason: "x"}
					if _, err := s.Insert(context.Background(), &rec); err != nil {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent Insert() error = %v", err)
		}

		recent, err := s.Recent(context.Background(), workers*each+10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(recent) != workers*each {
			t.Fatalf("records = %d, want %d", len(recent), workers*each)
		}
		seen := make(map[int64]bool)
		for _, r := range recent {
			if seen[r.ID] {
				t.Errorf("duplicate id %d", r.ID)
			}
			seen[r.ID] = true
		}
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Close()

	if _, err := s.Insert(context.Background(), &Record{}); err != ErrClosed {
		t.Errorf("Insert() after Close error = %v, want ErrClosed", err)
	}
	if err := s.Ping(context.Background()); err != ErrClosed {
		t.Errorf("Ping() after Close error = %v, want ErrClosed", err)
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadgerStore(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}
	first := mustInsert(t, s, Record{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenBadgerStore(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(context.Background(), first)
	if err != nil || got == nil {
		t.Fatalf("Get() after reopen = %v, %v", got, err)
	}
	second := mustInsert(t, s, Record{Verdict: verdict.Human, TriggerSource: verdict.MLModel})
	if second <= first {
		t.Errorf("id after reopen = %d, want > %d", second, first)
	}
}

func TestBadgerStore_CloseWaitsForInFlightOperations(t *testing.T) {
	s, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ctx := context.Background()
			for {
				rec := Record{Verdict: verdict.Bot, TriggerSource: verdict.SpeedTrap}
				id, err := s.Insert(ctx, &rec)
				if err == nil {
					_, err = s.Get(ctx, id)
				}
				if err == nil {
					_, err = s.Recent(ctx, 5)
				}
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	close(start)
	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("operation racing Close() error = %v, want ErrClosed", err)
		}
	}
}
