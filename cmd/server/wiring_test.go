// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tomtom215/botwatch/internal/classifier"
	"github.com/tomtom215/botwatch/internal/config"
	"github.com/tomtom215/botwatch/internal/telemetry"
)

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.DatabaseConfig{Backend: config.BackendMemory}},
		{name: "badger", cfg: config.DatabaseConfig{Backend: config.BackendBadger, BadgerPath: filepath.Join(t.TempDir(), "badger")}},
		{name: "unknown", cfg: config.DatabaseConfig{Backend: "sqlite"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(&tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer store.Close()
			if err := store.Ping(context.Background()); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}

func TestLoadClassifierDisabled(t *testing.T) {
	clf := loadClassifier(&config.ClassifierConfig{Mode: classifier.ModeDisabled})
	if clf == nil {
		t.Fatal("expected a placeholder classifier")
	}
	if classifier.IsReady(clf) {
		t.Error("disabled classifier reported ready")
	}
	_, err := clf.Predict(context.Background(), telemetry.FeatureVector{})
	if !errors.Is(err, classifier.ErrUnavailable) {
		t.Errorf("Predict error = %v, want ErrUnavailable", err)
	}
}

func TestInitEvents(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		bus, broker, err := initEvents(&config.EventsConfig{Enabled: false})
		if err != nil || bus != nil || broker != nil {
			t.Fatalf("got (%v, %v, %v), want all nil", bus, broker, err)
		}
	})

	t.Run("channel", func(t *testing.T) {
		bus, broker, err := initEvents(&config.EventsConfig{
			Enabled:    true,
			Backend:    config.EventsChannel,
			Topic:      "attempt.recorded",
			BufferSize: 16,
		})
		if err != nil {
			t.Fatalf("initEvents: %v", err)
		}
		defer bus.Close()
		if broker != nil {
			t.Error("channel backend must not start a broker")
		}
		if bus.Backend() != config.EventsChannel {
			t.Errorf("backend = %q", bus.Backend())
		}
	})
}
