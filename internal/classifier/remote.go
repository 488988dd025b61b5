// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/botwatch/internal/telemetry"
)

// maxRemoteResponse bounds the model server response body.
const maxRemoteResponse = 64 << 10

// RemoteConfig configures a Remote classifier.
type RemoteConfig struct {
	URL       string
	RateLimit float64
	Burst     int
	Client    *http.Client
}

// Remote delegates inference to a model server.
//
// Request:  POST {"features":[f0..f5]}
// Response: {"label":0|1,"probability":p}
type Remote struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type remoteRequest struct {
	Features telemetry.FeatureVector `json:"features"`
}

type remoteResponse struct {
	Label       *int     `json:"label"`
	Probability *float64 `json:"probability"`
}

// NewRemote creates a Remote classifier.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote classifier URL is empty")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	r := &Remote{url: cfg.URL, httpClient: client}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return r, nil
}

// Predict implements Classifier.
func (r *Remote) Predict(ctx context.Context, v telemetry.FeatureVector) (Prediction, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Prediction{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(remoteRequest{Features: v})
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("model server returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read model response: %w", err)
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Prediction{}, fmt.Errorf("failed to decode model response: %w", err)
	}
	if out.Label == nil || out.Probability == nil {
		return Prediction{}, errors.New("model response missing label or probability")
	}
	if *out.Label != 0 && *out.Label != 1 {
		return Prediction{}, fmt.Errorf("model returned invalid label %d", *out.Label)
	}
	if *out.Probability < 0 || *out.Probability > 1 {
		return Prediction{}, fmt.Errorf("model returned probability %v outside [0,1]", *out.Probability)
	}

	return Prediction{Label: Label(*out.Label), Probability: *out.Probability}, nil
}
