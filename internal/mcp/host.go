// Package mcp defines the tool-host contract between the decision layer
// and whatever supplies tools: in-process Go functions, or external Model
// Context Protocol servers.
//
// The [Host] owns the tool catalogue. Tools are bucketed into
// [BudgetTier]s by latency so the decision provider can ask for "only
// tools fast enough for this message" and get a truthful answer — tier
// assignments start from declared latencies and are corrected by
// measurement (see internal/mcp/mcphost).
package mcp

import (
	"context"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// ServerConfig describes one external MCP server to connect to.
type ServerConfig struct {
	// Name identifies the server within a Host; re-registering a name
	// replaces the previous connection.
	Name string

	// Transport selects how the server is reached.
	Transport Transport

	// Command is the executable plus arguments for TransportStdio,
	// e.g. "/usr/local/bin/mcp-tools --config /etc/mcp.json".
	Command string

	// URL is the endpoint for TransportStreamableHTTP.
	URL string

	// Env adds environment variables to a stdio server's process.
	Env map[string]string
}

// ToolResult is one tool execution's outcome. A tool's own failure comes
// back as IsError with the message in Content; Go errors are reserved for
// "no such tool" and transport problems.
type ToolResult struct {
	// Content is the tool's textual output, ready for an LLM context
	// window — or the error message when IsError is set.
	Content string

	// IsError marks an application-level tool failure.
	IsError bool

	// DurationMs is the wall-clock execution time.
	DurationMs int64
}

// ToolHealth is a diagnostic snapshot of one tool's measured behaviour.
type ToolHealth struct {
	// Name matches the tool's [types.ToolDefinition.Name].
	Name string

	// MeasuredP50Ms and MeasuredP99Ms are percentiles over the recent
	// measurement window; zero until the first call has been recorded.
	MeasuredP50Ms int64
	MeasuredP99Ms int64

	// CallCount is how many times the tool has run since registration.
	CallCount int

	// ErrorRate is the failing fraction of the recent window (0–1).
	ErrorRate float64

	// Tier is the tool's current budget-tier assignment.
	Tier BudgetTier
}

// Host is the tool catalogue and dispatcher. Implementations must be safe
// for concurrent use.
type Host interface {
	// RegisterServer connects to an external MCP server and imports its
	// tools.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// AvailableTools lists every tool whose tier fits within tier,
	// fastest first.
	AvailableTools(tier BudgetTier) []types.ToolDefinition

	// ExecuteTool runs the named tool with JSON-encoded args ("{}" for
	// parameter-less tools) and records the measurement.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Calibrate probes registered tools to seed latency measurements
	// before real traffic arrives. Bounded by ctx.
	Calibrate(ctx context.Context) error

	// Close disconnects all servers; the Host is unusable afterwards.
	Close() error
}
