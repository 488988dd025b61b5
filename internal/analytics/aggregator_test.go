// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package analytics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/verdict"
)

func mustInsert(t *testing.T, store attempts.Store, rec attempts.Record) {
	t.Helper()
	if _, err := store.Insert(context.Background(), &rec); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}

func TestDashboard_EmptyStore(t *testing.T) {
	agg := New(attempts.NewMemoryStore(), DefaultConfig())

	dash, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(dash.HeatmapData) != 24 {
		t.Fatalf("heatmap has %d entries, want 24", len(dash.HeatmapData))
	}

	data, err := json.Marshal(dash)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"recent_logs", "funnel_data", "zoo_data", "heatmap_data", "volume_data"} {
		raw, ok := decoded[key]
		if !ok {
			t.Errorf("missing key %q", key)
			continue
		}
		if raw[0] != '[' {
			t.Errorf("key %q = %s, want a JSON array", key, raw)
		}
	}
	if len(decoded) != 5 {
		t.Errorf("payload has %d keys, want exactly 5", len(decoded))
	}
}

func TestDashboard_HeatmapLabels(t *testing.T) {
	agg := New(attempts.NewMemoryStore(), DefaultConfig())
	dash, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	for i, entry := range dash.HeatmapData {
		if want := HourLabel(i); entry.Hour != want {
			t.Errorf("heatmap[%d].Hour = %q, want %q", i, entry.Hour, want)
		}
		if entry.Bots != 0 {
			t.Errorf("heatmap[%d].Bots = %d, want 0", i, entry.Bots)
		}
	}
	if dash.HeatmapData[0].Hour != "00:00" || dash.HeatmapData[23].Hour != "23:00" {
		t.Errorf("labels run %q..%q, want 00:00..23:00", dash.HeatmapData[0].Hour, dash.HeatmapData[23].Hour)
	}
}

func TestDashboard_LocalizesAcrossMidnight(t *testing.T) {
	store := attempts.NewMemoryStore()
	mustInsert(t, store, attempts.Record{
		Timestamp:       time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC),
		Verdict:         verdict.Bot,
		ConfidenceScore: 100,
		TriggerSource:   verdict.Honeypot,
		FailReason:      "Honeypot Field Filled",
	})

	dash, err := New(store, DefaultConfig()).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	if got := dash.RecentLogs[0].Time; got != "2024-01-02 03:30:00" {
		t.Errorf("recent time = %q, want 2024-01-02 03:30:00", got)
	}
	if dash.HeatmapData[3].Bots != 1 {
		t.Errorf("heatmap[03] = %d, want 1", dash.HeatmapData[3].Bots)
	}
	if len(dash.VolumeData) != 1 || dash.VolumeData[0].Date != "2024-01-02" {
		t.Fatalf("volume = %+v, want a single 2024-01-02 entry", dash.VolumeData)
	}
	if dash.VolumeData[0].Bots != 1 || dash.VolumeData[0].Humans != 0 {
		t.Errorf("volume counts = %+v, want 1 bot, 0 humans", dash.VolumeData[0])
	}
}

func TestDashboard_Sections(t *testing.T) {
	store := attempts.NewMemoryStore()
	base := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)
	records := []attempts.Record{
		{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot, FailReason: "Honeypot Field Filled", ConfidenceScore: 100},
		{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot, FailReason: "Honeypot Field Filled", ConfidenceScore: 100},
		{Verdict: verdict.Bot, TriggerSource: verdict.MLModel, FailReason: "Model Prediction (Prob: 0.91)", ConfidenceScore: 91},
		{Verdict: verdict.Human, TriggerSource: verdict.MLModel, FailReason: "Model Prediction (Prob: 0.05)", ConfidenceScore: 5},
		{Verdict: verdict.Suspicious, TriggerSource: verdict.MLModel, FailReason: "Model Prediction (Prob: 0.50)", ConfidenceScore: 50},
	}
	for i, rec := range records {
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		mustInsert(t, store, rec)
	}

	dash, err := New(store, Config{TZOffset: 0}).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	if len(dash.RecentLogs) != 5 || dash.RecentLogs[0].ID != 5 || dash.RecentLogs[4].ID != 1 {
		t.Errorf("recent ids not newest first: %+v", dash.RecentLogs)
	}
	if dash.RecentLogs[0].Source != verdict.MLModel || dash.RecentLogs[0].Verdict != verdict.Suspicious {
		t.Errorf("recent[0] = %+v", dash.RecentLogs[0])
	}

	wantFunnel := []attempts.Count{{Name: "ML_Model", Value: 3}, {Name: "Honeypot", Value: 2}}
	if len(dash.FunnelData) != len(wantFunnel) {
		t.Fatalf("funnel = %+v, want %+v", dash.FunnelData, wantFunnel)
	}
	for i := range wantFunnel {
		if dash.FunnelData[i] != wantFunnel[i] {
			t.Errorf("funnel[%d] = %+v, want %+v", i, dash.FunnelData[i], wantFunnel[i])
		}
	}

	wantZoo := []attempts.Count{{Name: "Honeypot Field Filled", Value: 2}, {Name: "Model Prediction (Prob: 0.91)", Value: 1}}
	if len(dash.ZooData) != len(wantZoo) {
		t.Fatalf("zoo = %+v, want %+v", dash.ZooData, wantZoo)
	}
	for i := range wantZoo {
		if dash.ZooData[i] != wantZoo[i] {
			t.Errorf("zoo[%d] = %+v, want %+v", i, dash.ZooData[i], wantZoo[i])
		}
	}

	if dash.HeatmapData[6].Bots != 3 {
		t.Errorf("heatmap[06] = %d, want 3", dash.HeatmapData[6].Bots)
	}

	// SUSPICIOUS is neither a bot nor a human in the volume chart.
	if len(dash.VolumeData) != 1 || dash.VolumeData[0].Bots != 3 || dash.VolumeData[0].Humans != 1 {
		t.Errorf("volume = %+v, want 3 bots, 1 human", dash.VolumeData)
	}
}

func TestDashboard_RecentLimit(t *testing.T) {
	store := attempts.NewMemoryStore()
	for i := 0; i < 30; i++ {
		mustInsert(t, store, attempts.Record{Verdict: verdict.Human, TriggerSource: verdict.MLModel})
	}

	dash, err := New(store, DefaultConfig()).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(dash.RecentLogs) != 20 {
		t.Fatalf("recent has %d entries, want 20", len(dash.RecentLogs))
	}
	for i := 1; i < len(dash.RecentLogs); i++ {
		if dash.RecentLogs[i-1].ID <= dash.RecentLogs[i].ID {
			t.Fatalf("recent not strictly descending at %d: %d then %d", i, dash.RecentLogs[i-1].ID, dash.RecentLogs[i].ID)
		}
	}
}

func TestNew_ClampsWindow(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantRecent int
		wantDays   int
	}{
		{"defaults for zero", Config{}, 20, 7},
		{"within bounds", Config{RecentLimit: 5, VolumeDays: 3}, 5, 3},
		{"capped", Config{RecentLimit: 500, VolumeDays: 30}, MaxRecentLimit, MaxVolumeDays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(attempts.NewMemoryStore(), tt.cfg).Config()
			if got.RecentLimit != tt.wantRecent || got.VolumeDays != tt.wantDays {
				t.Errorf("Config() = %+v, want recent %d, days %d", got, tt.wantRecent, tt.wantDays)
			}
		})
	}
}

func TestDashboard_RecentCappedAtTwenty(t *testing.T) {
	store := attempts.NewMemoryStore()
	for i := 0; i < 30; i++ {
		mustInsert(t, store, attempts.Record{Verdict: verdict.Bot, TriggerSource: verdict.Honeypot})
	}

	dash, err := New(store, Config{RecentLimit: 1000}).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(dash.RecentLogs) != MaxRecentLimit {
		t.Errorf("recent has %d entries, want %d", len(dash.RecentLogs), MaxRecentLimit)
	}
}

func TestDashboard_Idempotent(t *testing.T) {
	store := attempts.NewMemoryStore()
	for i := 0; i < 10; i++ {
		mustInsert(t, store, attempts.Record{
			Timestamp:     time.Date(2024, 5, 1+i%3, i, 0, 0, 0, time.UTC),
			Verdict:       verdict.Bot,
			TriggerSource: verdict.SpeedTrap,
			FailReason:    "Too Fast",
		})
	}
	agg := New(store, DefaultConfig())

	first, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	second, err := agg.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("payloads differ:\n%s\n%s", a, b)
	}
}

type failingStore struct {
	attempts.Store
	err error
}

func (f failingStore) Recent(context.Context, int) ([]attempts.Record, error) {
	return nil, f.err
}

func TestDashboard_StoreError(t *testing.T) {
	boom := errors.New("disk gone")
	agg := New(failingStore{Store: attempts.NewMemoryStore(), err: boom}, DefaultConfig())

	if _, err := agg.Dashboard(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Dashboard() error = %v, want wrapping %v", err, boom)
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := New(attempts.NewMemoryStore(), Config{}).Config()
	if cfg.RecentLimit != 20 || cfg.VolumeDays != 7 {
		t.Errorf("Config() = %+v, want recent 20 / days 7", cfg)
	}
}
