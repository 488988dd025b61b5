// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package analytics assembles the operator dashboard from the attempt log.
//
// The Aggregator holds no state between calls: every Dashboard is derived
// from the store at call time, so two calls with no intervening inserts
// return identical payloads.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/verdict"
)

// TimeLayout formats recent_logs timestamps in the operator's zone.
const TimeLayout = "2006-01-02 15:04:05"

// Config controls the dashboard window.
type Config struct {
	TZOffset    time.Duration
	RecentLimit int
	VolumeDays  int
}

// Upper bounds of the dashboard window.
const (
	MaxRecentLimit = 20
	MaxVolumeDays  = 7
)

// DefaultConfig matches the dashboard the operators were built around:
// IST (+05:30), twenty live entries, one week of volume.
func DefaultConfig() Config {
	return Config{
		TZOffset:    5*time.Hour + 30*time.Minute,
		RecentLimit: 20,
		VolumeDays:  7,
	}
}

// RecentLog is one live-feed entry.
type RecentLog struct {
	ID      int64                 `json:"id"`
	Time    string                `json:"time"`
	Verdict verdict.Verdict       `json:"verdict"`
	Source  verdict.TriggerSource `json:"source"`
	Score   float64               `json:"score"`
}

// HeatmapEntry is the bot count for one local hour, labelled "HH:00".
type HeatmapEntry struct {
	Hour string `json:"hour"`
	Bots int64  `json:"bots"`
}

// Dashboard is the /admin/stats payload. Slices are never nil so that every
// key serializes as a JSON array.
type Dashboard struct {
	RecentLogs  []RecentLog          `json:"recent_logs"`
	FunnelData  []attempts.Count     `json:"funnel_data"`
	ZooData     []attempts.Count     `json:"zoo_data"`
	HeatmapData []HeatmapEntry       `json:"heatmap_data"`
	VolumeData  []attempts.DayVolume `json:"volume_data"`
}

// Aggregator reads an attempts.Store on demand.
type Aggregator struct {
	store attempts.Store
	cfg   Config
}

// New creates an Aggregator. Non-positive limits fall back to the defaults
// and larger ones are capped at MaxRecentLimit and MaxVolumeDays.
func New(store attempts.Store, cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	cfg.RecentLimit = min(cfg.RecentLimit, MaxRecentLimit)
	if cfg.VolumeDays <= 0 {
		cfg.VolumeDays = def.VolumeDays
	}
	cfg.VolumeDays = min(cfg.VolumeDays, MaxVolumeDays)
	return &Aggregator{store: store, cfg: cfg}
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Dashboard builds the five dashboard sections.
func (a *Aggregator) Dashboard(ctx context.Context) (*Dashboard, error) {
	recent, err := a.store.Recent(ctx, a.cfg.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent attempts: %w", err)
	}

	funnel, err := a.store.CountByTriggerSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count trigger sources: %w", err)
	}

	zoo, err := a.store.CountFailReasons(ctx, verdict.Bot)
	if err != nil {
		return nil, fmt.Errorf("failed to count bot fail reasons: %w", err)
	}

	hours, err := a.store.HourlyBotHistogram(ctx, a.cfg.TZOffset)
	if err != nil {
		return nil, fmt.Errorf("failed to build hourly histogram: %w", err)
	}

	volume, err := a.store.DailyVolume(ctx, a.cfg.TZOffset, a.cfg.VolumeDays)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily volume: %w", err)
	}

	return &Dashboard{
		RecentLogs:  a.recentLogs(recent),
		FunnelData:  nonNil(funnel),
		ZooData:     nonNil(zoo),
		HeatmapData: heatmap(hours),
		VolumeData:  nonNil(volume),
	}, nil
}

func (a *Aggregator) recentLogs(records []attempts.Record) []RecentLog {
	out := make([]RecentLog, len(records))
	for i := range records {
		out[i] = NewRecentLog(&records[i], a.cfg.TZOffset)
	}
	return out
}

// NewRecentLog projects rec into a live-feed entry in the offset zone. The
// websocket feed uses the same shape so dashboards can prepend pushed
// entries to recent_logs.
func NewRecentLog(rec *attempts.Record, offset time.Duration) RecentLog {
	return RecentLog{
		ID:      rec.ID,
		Time:    attempts.LocalTime(rec.Timestamp, offset).Format(TimeLayout),
		Verdict: rec.Verdict,
		Source:  rec.TriggerSource,
		Score:   rec.ConfidenceScore,
	}
}

func heatmap(hours [24]attempts.HourBucket) []HeatmapEntry {
	out := make([]HeatmapEntry, len(hours))
	for i, b := range hours {
		out[i] = HeatmapEntry{Hour: HourLabel(b.Hour), Bots: b.Bots}
	}
	return out
}

// HourLabel formats a local hour as "HH:00".
func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
