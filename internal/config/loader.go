package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// TemplateSchemaVersion is the schema version embedded in this binary's
// default config template. A config file declaring an older version is
// migrated on Load.
const TemplateSchemaVersion = 1

// ValidLogLevels lists the accepted logging.level values, used for the
// warn-on-unknown check in Validate.
var ValidLogLevels = []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}

// Load reads the TOML config file at path. If the file does not exist, it is
// created from the embedded template first (idempotent: a second Load call
// against the same path makes no further changes). If the existing file
// declares an older schema_version than TemplateSchemaVersion, a migration
// pass merges missing keys from the template, preserving every existing
// value, and writes the result back atomically.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
			return nil, fmt.Errorf("config: writing template to %s: %w", path, err)
		}
		slog.Info("config file created from template", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if cfg.SchemaVersion < TemplateSchemaVersion {
		migrated, err := migrate(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: migration failed: %w", err)
		}
		if err := writeAtomic(path, migrated); err != nil {
			return nil, fmt.Errorf("config: writing migrated config: %w", err)
		}
		cfg = migrated
	}

	return cfg, nil
}

// LoadFromReader parses a TOML document from r into a Config. The raw tree
// is retained for dotted-path lookups and provider/pipeline/extension
// sub-table access (the configuration service's "hierarchical map"
// requirement).
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: reading document: %w", err)
	}

	cfg := &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: decoding typed sections: %w", err)
	}

	raw := make(map[string]any)
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("config: decoding raw tree: %w", err)
	}
	cfg.raw = raw

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate accumulates every validation problem found in cfg and returns
// them joined, rather than failing on the first one. Unknown log levels are
// logged as a warning (non-fatal), mirroring a soft-warn on unrecognized but
// plausible provider names.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.General.Name == "" {
		errs = append(errs, fmt.Errorf("%w: general.name is required", ErrConfig))
	}

	if cfg.Logging.Level != "" && !cfg.Logging.Level.Valid() {
		slog.Warn("unrecognized logging.level, falling back to info", "level", cfg.Logging.Level)
	}

	return errors.Join(errs...)
}

// migrate merges any key present in the embedded template but missing from
// cfg's raw tree, preserving every value cfg already has, then bumps
// SchemaVersion to TemplateSchemaVersion.
func migrate(cfg *Config) (*Config, error) {
	tmplCfg, err := LoadFromReader(bytes.NewReader([]byte(defaultTemplate)))
	if err != nil {
		return nil, fmt.Errorf("config: parsing embedded template: %w", err)
	}

	merged, ok := deepMerge(tmplCfg.raw, cfg.raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: migration merge produced non-map root")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(merged); err != nil {
		return nil, fmt.Errorf("config: re-encoding migrated tree: %w", err)
	}

	out, err := LoadFromReader(&buf)
	if err != nil {
		return nil, err
	}
	out.SchemaVersion = TemplateSchemaVersion
	return out, nil
}

func writeAtomic(path string, cfg *Config) error {
	tmp := path + ".tmp"
	cfg.raw["schema_version"] = cfg.SchemaVersion
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg.raw); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadMCPServers reads path as a YAML document into a list of
// MCPServerConfig. Returns an empty slice if path is empty.
func LoadMCPServers(path string) ([]MCPServerConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading mcp servers file %s: %w", path, err)
	}
	var doc struct {
		Servers []MCPServerConfig `yaml:"servers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing mcp servers file %s: %w", path, err)
	}
	return doc.Servers, nil
}

const defaultTemplate = `schema_version = 1

[general]
name = "amaidesu"

[logging]
level = "info"

[providers.input]
enabled = true
enabled_inputs = ["console_input"]

[providers.decision]
active_provider = "rule_engine"
available_providers = ["rule_engine", "llm", "replay"]

[providers.output]
enabled_outputs = ["debug_console"]

# Named LLM clients; the llm decision provider addresses these by name.
# [llm.clients.llm]
# backend = "openai"
# model = "gpt-4o-mini"
# api_key_env = "OPENAI_API_KEY"

[pipelines]

[extensions]
`
