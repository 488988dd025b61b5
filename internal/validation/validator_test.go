// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package validation

import (
	"strings"
	"testing"
)

type trapRequest struct {
	Verdict         string  `json:"verdict" validate:"required,verdict"`
	ConfidenceScore float64 `json:"confidence_score" validate:"gte=0,lte=100"`
	TriggerSource   string  `json:"trigger_source" validate:"required,trap_source"`
	WindowDims      string  `json:"window_dims,omitempty" validate:"max=32"`
	Internal        string  `json:"-"`
}

func validRequest() trapRequest {
	return trapRequest{
		Verdict:         "BOT",
		ConfidenceScore: 100,
		TriggerSource:   "Honeypot",
		WindowDims:      "1920x1080",
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil {
		t.Fatal("GetValidator() returned nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	for _, src := range []string{"Honeypot", "SpeedTrap", "GhostWindow"} {
		req := validRequest()
		req.TriggerSource = src
		if err := ValidateStruct(&req); err != nil {
			t.Errorf("trigger_source %q rejected: %v", src, err)
		}
	}
	for _, v := range []string{"BOT", "HUMAN", "SUSPICIOUS"} {
		req := validRequest()
		req.Verdict = v
		if err := ValidateStruct(&req); err != nil {
			t.Errorf("verdict %q rejected: %v", v, err)
		}
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*trapRequest)
		wantField string
		wantTag   string
	}{
		{"missing verdict", func(r *trapRequest) { r.Verdict = "" }, "verdict", "required"},
		{"unknown verdict", func(r *trapRequest) { r.Verdict = "ROBOT" }, "verdict", "verdict"},
		{"lowercase verdict", func(r *trapRequest) { r.Verdict = "bot" }, "verdict", "verdict"},
		{"unknown source", func(r *trapRequest) { r.TriggerSource = "Captcha" }, "trigger_source", "trap_source"},
		{"model source", func(r *trapRequest) { r.TriggerSource = "ML_Model" }, "trigger_source", "trap_source"},
		{"score above 100", func(r *trapRequest) { r.ConfidenceScore = 100.5 }, "confidence_score", "lte"},
		{"negative score", func(r *trapRequest) { r.ConfidenceScore = -1 }, "confidence_score", "gte"},
		{"long dims", func(r *trapRequest) { r.WindowDims = strings.Repeat("9", 40) }, "window_dims", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			verr := ValidateStruct(&req)
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	req := validRequest()
	req.ConfidenceScore = 250

	apiErr := ValidateStruct(&req).ToAPIError()
	if apiErr.Code != CodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, CodeValidation)
	}
	if apiErr.Message != "confidence_score must be less than or equal to 100" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "confidence_score" {
		t.Errorf("Details[field] = %v, want confidence_score", apiErr.Details["field"])
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	req := trapRequest{Verdict: "ROBOT", TriggerSource: ""}

	apiErr := ValidateStruct(&req).ToAPIError()
	if apiErr.Code != CodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, CodeValidation)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok {
		t.Fatalf("Details[fields] has type %T", apiErr.Details["fields"])
	}
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if !strings.Contains(apiErr.Message, "verdict must be one of") {
		t.Errorf("Message = %q, want verdict message", apiErr.Message)
	}
	if !strings.Contains(apiErr.Message, "trigger_source is required") {
		t.Errorf("Message = %q, want trigger_source message", apiErr.Message)
	}
}

func TestToAPIError_Empty(t *testing.T) {
	apiErr := (&RequestValidationError{}).ToAPIError()
	if apiErr.Code != CodeValidation || apiErr.Message != "Validation failed" {
		t.Errorf("got %+v", apiErr)
	}
}
