package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mai-with-u/amaidesu/internal/config"
)

func TestLoad_CreatesTemplateWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.General.Name != "amaidesu" {
		t.Errorf("expected template default name, got %q", cfg.General.Name)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected template file to be written: %v", err)
	}
}

func TestLoad_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	first, err := config.Load(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	firstBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file after first load: %v", err)
	}

	second, err := config.Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	secondBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file after second load: %v", err)
	}

	if string(firstBytes) != string(secondBytes) {
		t.Error("expected second Load to leave the file byte-for-byte unchanged")
	}
	if first.General.Name != second.General.Name {
		t.Error("expected idempotent reload to produce the same General.Name")
	}
}

func TestLoad_MigratesOlderSchemaPreservingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	old := `
schema_version = 0

[general]
name = "custom-agent"

[providers.output]
enabled_outputs = ["debug_console", "custom_overlay"]
`
	if err := os.WriteFile(path, []byte(old), 0o644); err != nil {
		t.Fatalf("writing old config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SchemaVersion != config.TemplateSchemaVersion {
		t.Errorf("expected migration to bump schema_version to %d, got %d", config.TemplateSchemaVersion, cfg.SchemaVersion)
	}
	if cfg.General.Name != "custom-agent" {
		t.Errorf("expected migration to preserve general.name, got %q", cfg.General.Name)
	}

	svc := config.NewService(cfg)
	if !svc.IsProviderEnabled("custom_overlay", "output") {
		t.Error("expected migration to preserve the pre-existing enabled_outputs entry")
	}
	if !svc.IsProviderEnabled("rule_engine", "decision") {
		t.Error("expected migration to add the template's missing providers.decision section")
	}
}

func TestLoadMCPServers_Empty(t *testing.T) {
	servers, err := config.LoadMCPServers("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if servers != nil {
		t.Errorf("expected nil servers for empty path, got %v", servers)
	}
}

func TestLoadMCPServers_Valid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	doc := `
servers:
  - name: tools
    transport: stdio
    command: /usr/local/bin/mcp-tools
  - name: web
    transport: http
    url: https://tools.example.com/mcp
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing mcp servers file: %v", err)
	}

	servers, err := config.LoadMCPServers(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[0].Name != "tools" || servers[0].Transport != "stdio" {
		t.Errorf("unexpected first server: %+v", servers[0])
	}
	if servers[1].URL != "https://tools.example.com/mcp" {
		t.Errorf("unexpected second server url: %q", servers[1].URL)
	}
}
