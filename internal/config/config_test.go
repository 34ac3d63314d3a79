package config_test

import (
	"strings"
	"testing"

	"github.com/Mai-with-u/amaidesu/internal/config"
)

const sampleTOML = `
schema_version = 1

[general]
name = "amaidesu"

[logging]
level = "debug"

[providers.input]
enabled = true
enabled_inputs = ["console_input", "bilibili_danmaku"]

[providers.decision]
active_provider = "llm"
available_providers = ["rule_engine", "llm", "replay"]

[providers.output]
enabled_outputs = ["debug_console", "tts"]

[pipelines.rate_limit]
max_per_minute = 30

[extensions.emotion_judge]
enabled = true
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.General.Name != "amaidesu" {
		t.Errorf("general.name: got %q", cfg.General.Name)
	}
	if cfg.Logging.Level != config.LogLevelDebug {
		t.Errorf("logging.level: got %q", cfg.Logging.Level)
	}
}

func TestLoadFromReader_MissingGeneralName(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`schema_version = 1`))
	if err == nil {
		t.Fatal("expected error for missing general.name, got nil")
	}
	if !strings.Contains(err.Error(), "general.name") {
		t.Errorf("error should mention general.name, got: %v", err)
	}
}

func TestLoadFromReader_UnknownLogLevelWarnsOnly(t *testing.T) {
	toml := `
[general]
name = "amaidesu"

[logging]
level = "chatty"
`
	_, err := config.LoadFromReader(strings.NewReader(toml))
	if err != nil {
		t.Fatalf("unknown log level should only warn, not fail: %v", err)
	}
}

func TestService_GetSection(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := config.NewService(cfg)

	section := svc.GetSection("providers.decision")
	if section == nil {
		t.Fatal("expected providers.decision section")
	}
	if section["active_provider"] != "llm" {
		t.Errorf("active_provider: got %v", section["active_provider"])
	}

	if svc.GetSection("providers.nonexistent") != nil {
		t.Error("expected nil for missing section")
	}
}

func TestService_Get(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := config.NewService(cfg)

	got := svc.Get("providers.decision", "active_provider", "fallback")
	if got != "llm" {
		t.Errorf("got %v, want llm", got)
	}

	missing := svc.Get("providers.decision", "nope", "fallback")
	if missing != "fallback" {
		t.Errorf("got %v, want fallback default", missing)
	}
}

func TestService_GetPipelineConfig(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := config.NewService(cfg)

	pc := svc.GetPipelineConfig("rate_limit")
	if pc["max_per_minute"] == nil {
		t.Fatal("expected rate_limit config")
	}

	empty := svc.GetPipelineConfig("nonexistent")
	if len(empty) != 0 {
		t.Errorf("expected empty map for unconfigured pipeline, got %v", empty)
	}
}

func TestService_GetAllProviderConfigs(t *testing.T) {
	toml := `
[general]
name = "amaidesu"

[providers.output.debug_console]
verbose = true

[providers.output.tts]
voice = "default"
`
	cfg, err := config.LoadFromReader(strings.NewReader(toml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := config.NewService(cfg)

	all := svc.GetAllProviderConfigs("output")
	if len(all) != 2 {
		t.Fatalf("expected 2 provider configs, got %d", len(all))
	}
	if all["tts"]["voice"] != "default" {
		t.Errorf("tts.voice: got %v", all["tts"]["voice"])
	}
}

func TestService_IsProviderEnabled(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := config.NewService(cfg)

	if !svc.IsProviderEnabled("console_input", "input") {
		t.Error("expected console_input enabled")
	}
	if svc.IsProviderEnabled("unknown_input", "input") {
		t.Error("expected unknown_input not enabled")
	}
	if !svc.IsProviderEnabled("llm", "decision") {
		t.Error("expected llm to be the active decision provider")
	}
	if svc.IsProviderEnabled("rule_engine", "decision") {
		t.Error("rule_engine is available but not active")
	}
}
