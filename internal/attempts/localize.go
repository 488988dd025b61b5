// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package attempts

import (
	"sort"
	"time"

	"github.com/tomtom215/botwatch/internal/verdict"
)

// DateLayout is the local calendar date format used in volume buckets.
const DateLayout = "2006-01-02"

// Localize shifts a UTC timestamp by offset and returns the resulting local
// date and hour. The shift happens before truncation, so 20:00 UTC with a
// +05:30 offset lands on the next day at hour 1.
func Localize(ts time.Time, offset time.Duration) (date string, hour int) {
	local := ts.UTC().Add(offset)
	return local.Format(DateLayout), local.Hour()
}

// LocalTime returns ts shifted by offset, still expressed in UTC so callers
// can format it without a location.
func LocalTime(ts time.Time, offset time.Duration) time.Time {
	return ts.UTC().Add(offset)
}

// histogram accumulates bot timestamps into 24 local-hour buckets.
type histogram struct {
	offset  time.Duration
	buckets [24]HourBucket
}

func newHistogram(offset time.Duration) *histogram {
	h := &histogram{offset: offset}
	for i := range h.buckets {
		h.buckets[i].Hour = i
	}
	return h
}

func (h *histogram) add(ts time.Time) {
	_, hour := Localize(ts, h.offset)
	h.buckets[hour].Bots++
}

// volume accumulates per-date bot and human counts.
type volume struct {
	offset time.Duration
	days   map[string]*DayVolume
}

func newVolume(offset time.Duration) *volume {
	return &volume{offset: offset, days: make(map[string]*DayVolume)}
}

func (v *volume) add(ts time.Time, vd verdict.Verdict) {
	date, _ := Localize(ts, v.offset)
	d, ok := v.days[date]
	if !ok {
		d = &DayVolume{Date: date}
		v.days[date] = d
	}
	switch vd {
	case verdict.Bot:
		d.Bots++
	case verdict.Human:
		d.Humans++
	}
}

// newest returns at most n dates, newest first.
func (v *volume) newest(n int) []DayVolume {
	out := make([]DayVolume, 0, len(v.days))
	for _, d := range v.days {
		out = append(out, *d)
	}
	// DateLayout sorts lexically in date order.
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
