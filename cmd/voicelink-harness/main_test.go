package main

import (
	"strings"
	"testing"
	"time"
)

type envMap map[string]string

func (m envMap) get(key string) string { return m[key] }

func TestParseHarnessConfigDefaults(t *testing.T) {
	cfg, err := parseHarnessConfig(nil, envMap{}.get)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":7860" {
		t.Errorf("Addr = %q, want :7860", cfg.Addr)
	}
	if cfg.PublicURL != "http://localhost:7860" {
		t.Errorf("PublicURL = %q, want http://localhost:7860", cfg.PublicURL)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.APIKey)
	}
	if cfg.GeminiModel != defaultGeminiModel {
		t.Errorf("GeminiModel = %q, want %q", cfg.GeminiModel, defaultGeminiModel)
	}
	if cfg.TurnGap != 2*time.Second {
		t.Errorf("TurnGap = %v, want 2s", cfg.TurnGap)
	}
}

func TestParseHarnessConfigEnv(t *testing.T) {
	env := envMap{
		"VOICELINK_API_KEY": "rest-key",
		"GOOGLE_API_KEY":    "google-key",
		"GEMINI_MODEL":      "gemini-custom",
	}
	cfg, err := parseHarnessConfig(nil, env.get)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.APIKey != "rest-key" {
		t.Errorf("APIKey = %q, want rest-key", cfg.APIKey)
	}
	if cfg.GeminiKey != "google-key" {
		t.Errorf("GeminiKey = %q, want google-key", cfg.GeminiKey)
	}
	if cfg.GeminiModel != "gemini-custom" {
		t.Errorf("GeminiModel = %q, want gemini-custom", cfg.GeminiModel)
	}

	env["GEMINI_API_KEY"] = "gemini-key"
	cfg, err = parseHarnessConfig(nil, env.get)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GeminiKey != "gemini-key" {
		t.Errorf("GeminiKey = %q, want GEMINI_API_KEY to win", cfg.GeminiKey)
	}
}

func TestParseHarnessConfigFlags(t *testing.T) {
	args := []string{
		"-addr", "127.0.0.1:9000",
		"-public-url", "https://demo.example/",
		"-turn-gap", "500ms",
	}
	cfg, err := parseHarnessConfig(args, envMap{}.get)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.PublicURL != "https://demo.example" {
		t.Errorf("PublicURL = %q, want trailing slash trimmed", cfg.PublicURL)
	}
	if cfg.TurnGap != 500*time.Millisecond {
		t.Errorf("TurnGap = %v, want 500ms", cfg.TurnGap)
	}
}

func TestParseHarnessConfigDerivesPublicURL(t *testing.T) {
	cfg, err := parseHarnessConfig([]string{"-addr", "127.0.0.1:9000"}, envMap{}.get)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.PublicURL != "http://127.0.0.1:9000" {
		t.Errorf("PublicURL = %q, want http://127.0.0.1:9000", cfg.PublicURL)
	}
}

func TestParseHarnessConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"empty addr", []string{"-addr", ""}, "addr"},
		{"bad public url", []string{"-public-url", "not a url"}, "public-url"},
		{"credentials in public url", []string{"-public-url", "http://user:pw@h.example"}, "credentials"},
		{"zero turn gap", []string{"-turn-gap", "0s"}, "turn-gap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHarnessConfig(tt.args, envMap{}.get)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
