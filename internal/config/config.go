// Package config implements the Configuration Service: layered TOML config
// load/merge, section lookup, and schema-version migration.
package config

// Config is the root configuration tree. General and Logging are decoded
// into typed structs because the core validates them; everything under
// providers/pipelines/extensions is kept as a generic hierarchical map
// because provider and extension sub-tables are opaque to the core (each
// name is handed its own sub-table verbatim, after merge with its schema
// defaults).
type Config struct {
	SchemaVersion int           `toml:"schema_version"`
	General       GeneralConfig `toml:"general"`
	Logging       LoggingConfig `toml:"logging"`
	MCP           MCPConfig     `toml:"mcp"`

	// raw holds the full decoded TOML tree, used for dotted-path lookups
	// and provider/pipeline/extension sub-table access.
	raw map[string]any
}

// GeneralConfig holds process-wide settings the core validates directly.
type GeneralConfig struct {
	Name string `toml:"name"`
}

// LogLevel is the closed set of accepted logging verbosities.
type LogLevel string

// The closed LogLevel enum.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Valid reports whether l is a member of the closed LogLevel enum.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level LogLevel `toml:"level"`
}

// MCPConfig points at the separate YAML sub-document describing MCP tool
// servers. Server lists stay YAML because that is the format MCP server
// manifests are exchanged in.
type MCPConfig struct {
	ConfigFile string `toml:"config_file"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
// Loaded separately via LoadMCPServers, not part of the main TOML decode.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}
