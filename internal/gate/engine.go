// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/classifier"
	"github.com/tomtom215/botwatch/internal/logging"
	"github.com/tomtom215/botwatch/internal/metrics"
	"github.com/tomtom215/botwatch/internal/telemetry"
	"github.com/tomtom215/botwatch/internal/validation"
	"github.com/tomtom215/botwatch/internal/verdict"
)

// Publisher fans a stored record out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, rec *attempts.Record) error
}

// Engine wires the verdict pipeline to its collaborators. All fields are set
// once in NewEngine and read-only afterwards, so an Engine is safe for
// concurrent use.
type Engine struct {
	store      attempts.Store
	classifier classifier.Classifier
	policy     verdict.Policy
	publisher  Publisher
}

// NewEngine creates an engine. A nil classifier behaves as unavailable and a
// nil publisher disables event fan-out.
func NewEngine(store attempts.Store, clf classifier.Classifier, policy verdict.Policy, publisher Publisher) *Engine {
	if clf == nil {
		clf = &classifier.Unavailable{}
	}
	return &Engine{
		store:      store,
		classifier: clf,
		policy:     policy,
		publisher:  publisher,
	}
}

// ClassifierReady reports whether Classify can currently reach a model.
func (e *Engine) ClassifierReady() bool {
	return classifier.IsReady(e.classifier)
}

// LogTrap records a verdict produced by a client-side trap. The classifier
// is never consulted, so trap logging keeps working while it is down.
func (e *Engine) LogTrap(ctx context.Context, ev *TrapEvent, ip string) (*Outcome, error) {
	if verr := validation.ValidateStruct(ev); verr != nil {
		return nil, verr
	}

	note := ev.FeaturesCalculated.Note
	if note == "" {
		note = DefaultNote
	}
	dims := ev.WindowDims
	if dims == "" {
		dims = attempts.DefaultWindowDims
	}

	decision := e.policy.FromTrap(ev.Verdict, ev.ConfidenceScore, ev.TriggerSource, note)
	rec := &attempts.Record{
		Verdict:         decision.Verdict,
		ConfidenceScore: decision.Score,
		TriggerSource:   decision.TriggerSource,
		FailReason:      decision.Reason,
		MousePath:       rawPathOrEmpty(ev.FeaturesCalculated.RawPath),
		WindowDims:      dims,
		IPAddress:       ip,
	}

	out := &Outcome{Decision: decision, Record: rec}
	out.StoreErr = e.persist(ctx, rec)
	return out, nil
}

// Classify scores a telemetry submission with the model. Malformed telemetry
// returns a *telemetry.ValidationError and a failed prediction returns an
// error wrapping classifier.ErrUnavailable; neither writes a record.
func (e *Engine) Classify(ctx context.Context, payload *telemetry.Payload, ip string) (*Classification, error) {
	raw, err := telemetry.Normalize(payload)
	if err != nil {
		return nil, err
	}
	features := telemetry.Extract(raw)

	pred, err := e.classifier.Predict(ctx, features)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("classifier prediction failed")
		return nil, fmt.Errorf("failed to classify submission: %w", err)
	}

	decision := e.policy.FromModel(pred)

	rawPath, err := json.Marshal(payload.MousePath)
	if err != nil {
		// Normalize already rejected non-finite samples.
		rawPath = json.RawMessage("[]")
	}

	rec := &attempts.Record{
		Verdict:         decision.Verdict,
		ConfidenceScore: decision.Score,
		TriggerSource:   decision.TriggerSource,
		FailReason:      decision.Reason,
		MousePath:       rawPath,
		WindowDims:      raw.WindowDims(),
		IPAddress:       ip,
	}

	out := &Classification{
		Outcome:  Outcome{Decision: decision, Record: rec},
		Features: features,
		RawPath:  rawPath,
	}
	out.StoreErr = e.persist(ctx, rec)
	return out, nil
}

// persist appends rec and publishes it. A failure is logged and counted; the
// caller still answers the client with the computed verdict.
func (e *Engine) persist(ctx context.Context, rec *attempts.Record) error {
	metrics.RecordVerdict(string(rec.Verdict), string(rec.TriggerSource), rec.ConfidenceScore)

	if _, err := e.store.Insert(ctx, rec); err != nil {
		metrics.StoreWriteFailures.Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("verdict", string(rec.Verdict)).
			Str("trigger_source", string(rec.TriggerSource)).
			Msg("failed to record attempt")
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	logging.Ctx(ctx).Debug().
		Int64("attempt_id", rec.ID).
		Str("verdict", string(rec.Verdict)).
		Str("trigger_source", string(rec.TriggerSource)).
		Float64("confidence_score", rec.ConfidenceScore).
		Msg("attempt recorded")

	e.publish(ctx, rec)
	return nil
}

// publishTimeout bounds the fan-out so a stalled broker cannot hold a
// request open.
const publishTimeout = 2 * time.Second

func (e *Engine) publish(ctx context.Context, rec *attempts.Record) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, rec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("attempt_id", rec.ID).Msg("failed to publish attempt event")
	}
}

func rawPathOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("[]")
	}
	return raw
}
