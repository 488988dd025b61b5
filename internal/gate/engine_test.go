// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package gate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/classifier"
	"github.com/tomtom215/botwatch/internal/metrics"
	"github.com/tomtom215/botwatch/internal/telemetry"
	"github.com/tomtom215/botwatch/internal/validation"
	"github.com/tomtom215/botwatch/internal/verdict"
)

type recordingPublisher struct {
	mu      sync.Mutex
	records []attempts.Record
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, rec *attempts.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, *rec)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// countingClassifier fails the test if it is ever called.
type countingClassifier struct {
	t *testing.T
}

func (c countingClassifier) Predict(context.Context, telemetry.FeatureVector) (classifier.Prediction, error) {
	c.t.Error("classifier must not be called for trap events")
	return classifier.Prediction{}, nil
}

func samplePayload() *telemetry.Payload {
	return &telemetry.Payload{
		MousePath:       [][]float64{{0, 0, 0}, {100, 0, 1000}},
		ClickTimestamps: []float64{500, 520},
		ScreenWidth:     1920,
		ScreenHeight:    1080,
	}
}

func TestLogTrap(t *testing.T) {
	store := attempts.NewMemoryStore()
	pub := &recordingPublisher{}
	engine := NewEngine(store, countingClassifier{t: t}, verdict.Policy{}, pub)

	ev := &TrapEvent{
		Verdict:         verdict.Bot,
		ConfidenceScore: 100,
		TriggerSource:   verdict.Honeypot,
		FeaturesCalculated: TrapFeatures{
			Note:    "Honeypot Field Filled",
			RawPath: json.RawMessage(`[[1,2,3]]`),
		},
		WindowDims: "800x600",
	}

	out, err := engine.LogTrap(context.Background(), ev, "203.0.113.7")
	if err != nil {
		t.Fatalf("LogTrap() error = %v", err)
	}
	if !out.Stored() {
		t.Fatalf("record not stored: %v", out.StoreErr)
	}

	got, err := store.Get(context.Background(), out.Record.ID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.Verdict != verdict.Bot || got.ConfidenceScore != 100 || got.TriggerSource != verdict.Honeypot {
		t.Errorf("stored record = %+v", got)
	}
	if got.FailReason != "Honeypot Field Filled" {
		t.Errorf("FailReason = %q", got.FailReason)
	}
	if string(got.MousePath) != `[[1,2,3]]` {
		t.Errorf("MousePath = %s", got.MousePath)
	}
	if got.WindowDims != "800x600" || got.IPAddress != "203.0.113.7" {
		t.Errorf("dims/ip = %q/%q", got.WindowDims, got.IPAddress)
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want 1", pub.count())
	}
}

func TestLogTrap_Defaults(t *testing.T) {
	store := attempts.NewMemoryStore()
	engine := NewEngine(store, nil, verdict.Policy{}, nil)

	out, err := engine.LogTrap(context.Background(), &TrapEvent{
		Verdict:         verdict.Bot,
		ConfidenceScore: 95,
		TriggerSource:   verdict.GhostWindow,
	}, "")
	if err != nil {
		t.Fatalf("LogTrap() error = %v", err)
	}
	rec := out.Record
	if rec.FailReason != DefaultNote {
		t.Errorf("FailReason = %q, want %q", rec.FailReason, DefaultNote)
	}
	if rec.WindowDims != attempts.DefaultWindowDims {
		t.Errorf("WindowDims = %q, want %q", rec.WindowDims, attempts.DefaultWindowDims)
	}
	if string(rec.MousePath) != "[]" {
		t.Errorf("MousePath = %s, want []", rec.MousePath)
	}
}

func TestLogTrap_Validation(t *testing.T) {
	store := attempts.NewMemoryStore()
	engine := NewEngine(store, nil, verdict.Policy{}, nil)

	tests := []struct {
		name string
		ev   TrapEvent
	}{
		{"missing verdict", TrapEvent{ConfidenceScore: 100, TriggerSource: verdict.Honeypot}},
		{"unknown verdict", TrapEvent{Verdict: "MAYBE", TriggerSource: verdict.Honeypot}},
		{"unknown source", TrapEvent{Verdict: verdict.Bot, TriggerSource: "Captcha"}},
		{"model source", TrapEvent{Verdict: verdict.Human, TriggerSource: verdict.MLModel}},
		{"score out of range", TrapEvent{Verdict: verdict.Bot, ConfidenceScore: 140, TriggerSource: verdict.SpeedTrap}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := tt.ev
			_, err := engine.LogTrap(context.Background(), &ev, "")
			var verr *validation.RequestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *validation.RequestValidationError", err)
			}
		})
	}

	recent, _ := store.Recent(context.Background(), 10)
	if len(recent) != 0 {
		t.Errorf("invalid events wrote %d records", len(recent))
	}
}

func TestLogTrap_WorksWithoutClassifier(t *testing.T) {
	engine := NewEngine(attempts.NewMemoryStore(), &classifier.Unavailable{}, verdict.Policy{}, nil)
	if engine.ClassifierReady() {
		t.Error("ClassifierReady() = true for an unavailable classifier")
	}
	out, err := engine.LogTrap(context.Background(), &TrapEvent{
		Verdict: verdict.Bot, ConfidenceScore: 100, TriggerSource: verdict.SpeedTrap,
	}, "")
	if err != nil || !out.Stored() {
		t.Fatalf("LogTrap() = %+v, %v", out, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		pred        classifier.Fixed
		wantVerdict verdict.Verdict
		wantScore   float64
		wantReason  string
	}{
		{"confident bot", classifier.Fixed{Label: classifier.LabelBot, Probability: 0.92}, verdict.Bot, 92, "Model Prediction (Prob: 0.92)"},
		{"confident human", classifier.Fixed{Label: classifier.LabelHuman, Probability: 0.1}, verdict.Human, 10, "Model Prediction (Prob: 0.10)"},
		{"band lower edge", classifier.Fixed{Label: classifier.LabelHuman, Probability: 0.3}, verdict.Suspicious, 30, "Model Prediction (Prob: 0.30)"},
		{"band upper edge", classifier.Fixed{Label: classifier.LabelBot, Probability: 0.7}, verdict.Suspicious, 70, "Model Prediction (Prob: 0.70)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := attempts.NewMemoryStore()
			pub := &recordingPublisher{}
			engine := NewEngine(store, tt.pred, verdict.Policy{}, pub)

			out, err := engine.Classify(context.Background(), samplePayload(), "198.51.100.4")
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if out.Decision.Verdict != tt.wantVerdict {
				t.Errorf("Verdict = %s, want %s", out.Decision.Verdict, tt.wantVerdict)
			}
			if diff := out.Decision.Score - tt.wantScore; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score = %v, want %v", out.Decision.Score, tt.wantScore)
			}
			if out.Decision.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", out.Decision.Reason, tt.wantReason)
			}
			if out.Decision.IsBot() != (tt.wantVerdict == verdict.Bot) {
				t.Errorf("IsBot() = %v for %s", out.Decision.IsBot(), tt.wantVerdict)
			}

			rec, _ := store.Get(context.Background(), out.Record.ID)
			if rec == nil {
				t.Fatal("record not stored")
			}
			if rec.TriggerSource != verdict.MLModel {
				t.Errorf("TriggerSource = %s, want ML_Model", rec.TriggerSource)
			}
			if rec.WindowDims != "1920x1080" {
				t.Errorf("WindowDims = %q, want 1920x1080", rec.WindowDims)
			}
			if string(rec.MousePath) != "[[0,0,0],[100,0,1000]]" {
				t.Errorf("MousePath = %s", rec.MousePath)
			}
			if pub.count() != 1 {
				t.Errorf("published %d events, want 1", pub.count())
			}
		})
	}
}

func TestClassify_Features(t *testing.T) {
	engine := NewEngine(attempts.NewMemoryStore(), classifier.Fixed{Probability: 0.05}, verdict.Policy{}, nil)

	out, err := engine.Classify(context.Background(), samplePayload(), "")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	want := telemetry.FeatureVector{1000, 0, 1, 0, 20, 0}
	if out.Features != want {
		t.Errorf("Features = %v, want %v", out.Features, want)
	}
}

func TestClassify_InvalidTelemetry(t *testing.T) {
	store := attempts.NewMemoryStore()
	engine := NewEngine(store, classifier.Fixed{Label: classifier.LabelBot, Probability: 1}, verdict.Policy{}, nil)

	_, err := engine.Classify(context.Background(), &telemetry.Payload{}, "")
	var verr *telemetry.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *telemetry.ValidationError", err)
	}
	if recent, _ := store.Recent(context.Background(), 1); len(recent) != 0 {
		t.Error("invalid telemetry must not be recorded")
	}
}

func TestClassify_ClassifierUnavailable(t *testing.T) {
	store := attempts.NewMemoryStore()
	engine := NewEngine(store, nil, verdict.Policy{}, nil)

	_, err := engine.Classify(context.Background(), samplePayload(), "")
	if !errors.Is(err, classifier.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if recent, _ := store.Recent(context.Background(), 1); len(recent) != 0 {
		t.Error("unclassified submission must not be recorded")
	}
}

func TestClassify_StoreFailureKeepsVerdict(t *testing.T) {
	store := attempts.NewMemoryStore()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	pub := &recordingPublisher{}
	engine := NewEngine(store, classifier.Fixed{Label: classifier.LabelBot, Probability: 0.99}, verdict.Policy{}, pub)

	before := testutil.ToFloat64(metrics.StoreWriteFailures)

	out, err := engine.Classify(context.Background(), samplePayload(), "")
	if err != nil {
		t.Fatalf("Classify() error = %v, want verdict despite store failure", err)
	}
	if out.Decision.Verdict != verdict.Bot {
		t.Errorf("Verdict = %s, want BOT", out.Decision.Verdict)
	}
	if !errors.Is(out.StoreErr, ErrStoreWrite) || !errors.Is(out.StoreErr, attempts.ErrClosed) {
		t.Errorf("StoreErr = %v, want ErrStoreWrite wrapping ErrClosed", out.StoreErr)
	}
	if out.Stored() {
		t.Error("Stored() = true after a failed insert")
	}
	if d := testutil.ToFloat64(metrics.StoreWriteFailures) - before; d != 1 {
		t.Errorf("store write failure delta = %v, want 1", d)
	}
	if pub.count() != 0 {
		t.Error("unpersisted records must not be published")
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	engine := NewEngine(attempts.NewMemoryStore(), nil, verdict.Policy{}, pub)

	out, err := engine.LogTrap(context.Background(), &TrapEvent{
		Verdict: verdict.Bot, ConfidenceScore: 100, TriggerSource: verdict.Honeypot,
	}, "")
	if err != nil || !out.Stored() {
		t.Fatalf("LogTrap() = %+v, %v", out, err)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	store := attempts.NewMemoryStore()
	engine := NewEngine(store, classifier.Fixed{Label: classifier.LabelHuman, Probability: 0.02}, verdict.Policy{}, nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = engine.Classify(context.Background(), samplePayload(), "")
				return
			}
			_, _ = engine.LogTrap(context.Background(), &TrapEvent{
				Verdict: verdict.Bot, ConfidenceScore: 100, TriggerSource: verdict.SpeedTrap,
			}, "")
		}(i)
	}
	wg.Wait()

	recent, err := store.Recent(context.Background(), n+10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != n {
		t.Errorf("stored %d records, want %d", len(recent), n)
	}
}
