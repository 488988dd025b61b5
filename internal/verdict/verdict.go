// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

// Package verdict turns trap signals or classifier output into the ternary
// verdict, a 0-100 confidence score and a human-readable reason.
package verdict

import (
	"fmt"

	"github.com/tomtom215/botwatch/internal/classifier"
)

// Verdict is the outcome recorded for a submission.
type Verdict string

const (
	Bot        Verdict = "BOT"
	Human      Verdict = "HUMAN"
	Suspicious Verdict = "SUSPICIOUS"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case Bot, Human, Suspicious:
		return true
	}
	return false
}

// TriggerSource names the mechanism that produced a verdict.
type TriggerSource string

const (
	Honeypot    TriggerSource = "Honeypot"
	SpeedTrap   TriggerSource = "SpeedTrap"
	GhostWindow TriggerSource = "GhostWindow"
	MLModel     TriggerSource = "ML_Model"
)

// Valid reports whether s is one of the known trigger sources.
func (s TriggerSource) Valid() bool {
	switch s {
	case Honeypot, SpeedTrap, GhostWindow, MLModel:
		return true
	}
	return false
}

// IsTrap reports whether s is a client-side trap rather than the model.
func (s TriggerSource) IsTrap() bool {
	return s.Valid() && s != MLModel
}

// Band is the inclusive confidence range mapped to Suspicious in model mode.
type Band struct {
	Low  float64
	High float64
}

// DefaultBand is 30 <= score <= 70.
var DefaultBand = Band{Low: 30, High: 70}

// Contains reports whether score falls inside the band, bounds included.
func (b Band) Contains(score float64) bool {
	return score >= b.Low && score <= b.High
}

// Validate checks that the band is ordered and within [0,100].
func (b Band) Validate() error {
	if b.Low < 0 || b.High > 100 || b.Low > b.High {
		return fmt.Errorf("invalid suspicious band [%v, %v]", b.Low, b.High)
	}
	return nil
}

// Decision is the policy output for one submission.
type Decision struct {
	Verdict       Verdict
	Score         float64
	Reason        string
	TriggerSource TriggerSource
}

// IsBot reports whether the decision is a definite bot verdict.
func (d Decision) IsBot() bool {
	return d.Verdict == Bot
}

// Policy applies the verdict rules. The zero value uses DefaultBand.
type Policy struct {
	band Band
	set  bool
}

// NewPolicy returns a policy using band.
func NewPolicy(band Band) (Policy, error) {
	if err := band.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{band: band, set: true}, nil
}

// Band returns the active suspicious band.
func (p Policy) Band() Band {
	if !p.set {
		return DefaultBand
	}
	return p.band
}

// FromTrap accepts a pre-computed verdict verbatim.
func (p Policy) FromTrap(v Verdict, score float64, source TriggerSource, reason string) Decision {
	return Decision{Verdict: v, Score: score, Reason: reason, TriggerSource: source}
}

// FromModel maps a classifier prediction to a decision.
func (p Policy) FromModel(pred classifier.Prediction) Decision {
	score := pred.Probability * 100

	v := Human
	if pred.Label == classifier.LabelBot {
		v = Bot
	}
	if p.Band().Contains(score) {
		v = Suspicious
	}

	return Decision{
		Verdict:       v,
		Score:         score,
		Reason:        fmt.Sprintf("Model Prediction (Prob: %.2f)", pred.Probability),
		TriggerSource: MLModel,
	}
}
