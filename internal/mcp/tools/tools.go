// Package tools holds the one type every built-in tool package shares.
// Each sub-package (diceroller, fileio, memorytool) exports a constructor
// returning []Tool, and cmd wiring hands the combined slice to the MCP
// host in a single registration call.
package tools

import (
	"context"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Tool pairs an LLM-facing definition with the Go function that serves it,
// plus the author's latency declarations the host seeds budget tiers from
// until real measurements accumulate.
type Tool struct {
	// Definition is the schema the LLM sees: name, description, JSON
	// Schema parameters, and the latency/idempotency hints.
	Definition types.ToolDefinition

	// Handler runs the tool: JSON-encoded args in, JSON-encoded result
	// out. Handlers must be safe for concurrent use and honour ctx.
	Handler func(ctx context.Context, args string) (string, error)

	// DeclaredP50 is the author's expected median latency in
	// milliseconds; it decides the tool's starting budget tier.
	DeclaredP50 int64

	// DeclaredMax is the author's worst-case latency bound in
	// milliseconds.
	DeclaredMax int64
}
