// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package attempts

import (
	"testing"
	"time"
)

const ist = 5*time.Hour + 30*time.Minute

func TestLocalize(t *testing.T) {
	tests := []struct {
		name     string
		ts       time.Time
		offset   time.Duration
		wantDate string
		wantHour int
	}{
		{"crosses midnight forward", time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC), ist, "2026-05-02", 1},
		{"same day", time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC), ist, "2026-05-01", 7},
		{"half hour boundary", time.Date(2026, 5, 1, 18, 29, 59, 0, time.UTC), ist, "2026-05-01", 23},
		{"exact local midnight", time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC), ist, "2026-05-02", 0},
		{"negative offset", time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC), -5 * time.Hour, "2026-04-30", 22},
		{"zero offset", time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC), 0, "2026-12-31", 23},
		{"non-UTC input is normalized", time.Date(2026, 5, 1, 20, 0, 0, 0, time.FixedZone("X", 3600)), ist, "2026-05-02", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, hour := Localize(tt.ts, tt.offset)
			if date != tt.wantDate || hour != tt.wantHour {
				t.Errorf("Localize() = (%s, %d), want (%s, %d)", date, hour, tt.wantDate, tt.wantHour)
			}
		})
	}
}

func TestVolumeNewest(t *testing.T) {
	v := newVolume(0)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for d := 0; d < 10; d++ {
		v.add(base.AddDate(0, 0, d), "BOT")
	}

	got := v.newest(7)
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	if got[0].Date != "2026-01-10" || got[6].Date != "2026-01-04" {
		t.Errorf("dates = %s..%s, want 2026-01-10..2026-01-04", got[0].Date, got[6].Date)
	}
}
