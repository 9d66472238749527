package internal

import (
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should pass: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestPipelineConfig_ThresholdOrdering(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Pipeline.ApproveThreshold = 0.4
	cfg.Pipeline.RejectThreshold = 0.5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("reject >= approve should fail validation")
	}
	if !strings.Contains(err.Error(), "reject_threshold") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPipelineConfig_Bounds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Pipeline.Workers = 0 },
		func(c *Config) { c.Pipeline.ApproveThreshold = 1.5 },
		func(c *Config) { c.Pipeline.DuplicateThreshold = -0.1 },
		func(c *Config) { c.Pipeline.EmbeddingDim = 2 },
		func(c *Config) { c.Pipeline.Strategy = "" },
		func(c *Config) { c.Pipeline.ScorerVersion = "" },
	}
	for i, mutate := range cases {
		cfg := NewDefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: invalid pipeline config passed validation", i)
		}
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
