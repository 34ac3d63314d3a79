// Package provider defines the three layer contracts (Input, Decision,
// Output) every pluggable provider in this system implements, plus the
// immutable dependency bundle handed to each on construction.
package provider

import (
	"context"

	"github.com/Mai-with-u/amaidesu/internal/audiostream"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/mcp"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Context is the immutable dependency bundle handed to every provider at
// construction. Providers MUST accept it exactly once and treat it as
// read-only; per the open question on duplicate dependency paths, a
// provider should read everything it needs from Context rather than also
// being handed an ad hoc dependencies map.
type Context struct {
	EventBus      *eventbus.Bus
	ConfigService ConfigService
	LLMService    LLMService
	PromptService PromptService
	AudioStream   AudioStream
	ContextStore  ConversationStore
	ToolHost      ToolHost
}

// ConfigService is the subset of the configuration service a provider may
// call directly (see internal/config for the full implementation).
type ConfigService interface {
	GetSection(dottedPath string) map[string]any
	Get(section, key string, def any) any
}

// LLMService is the subset of the LLM manager (internal/llm) a provider may
// call directly.
type LLMService interface {
	HasClient(name string) bool
}

// PromptService is the subset of the prompt manager (internal/prompt) a
// provider may call directly.
type PromptService interface {
	Render(templateName string, vars map[string]any) (string, error)
}

// AudioStream is the Audio Stream Channel surface providers use: the
// publish side for TTS-producing output providers and the subscribe side
// for audio consumers (avatar lip-sync, voice playback).
type AudioStream interface {
	NotifyStart(meta types.AudioMetadata)
	Publish(ctx context.Context, chunk types.AudioChunk) audiostream.PublishResult
	NotifyEnd(meta types.AudioMetadata)
	Subscribe(name string, onStart func(types.AudioMetadata), onChunk func(types.AudioChunk), onEnd func(types.AudioMetadata), cfg audiostream.SubscriptionConfig) (string, error)
	Unsubscribe(id string)
}

// ConversationStore is the subset of the conversation/context service a
// decision provider needs for recent-history lookups.
type ConversationStore interface {
	Recent(ctx context.Context, sessionID string, n int) ([]types.TranscriptEntry, error)
}

// ToolHost is the subset of internal/mcp.Host a decision provider may call
// to discover and execute MCP tools as part of its LLM call.
type ToolHost interface {
	AvailableTools(tier mcp.BudgetTier) []types.ToolDefinition
	ExecuteTool(ctx context.Context, name, args string) (*mcp.ToolResult, error)
}

// InputProvider produces a stream of normalized messages from one external
// source (chat platform, console, captured screen text, …).
type InputProvider interface {
	// Start opens external resources (sockets, files, subscriptions).
	Start(ctx context.Context) error

	// Stream returns a channel of normalized messages, closed when the
	// provider stops, and a parallel channel carrying stream-level errors.
	// Each delivered message MUST already be fully normalized and
	// LLM-ready; a panic or error here aborts only this provider.
	Stream(ctx context.Context) (<-chan types.NormalizedMessage, <-chan error)

	// Stop signals internal shutdown and calls Cleanup.
	Stop() error

	// Cleanup releases external resources.
	Cleanup() error
}

// DecisionProvider owns the single active decision policy: consuming a
// NormalizedMessage and publishing exactly one decision.intent event.
type DecisionProvider interface {
	// Start initializes the provider against the event bus and config.
	Start(ctx context.Context, bus *eventbus.Bus, config map[string]any) error

	// Decide is fire-and-forget: it MUST internally publish exactly one
	// decision.intent event on success, or one fallback Intent on failure,
	// and MUST NOT let an unreachable external service abort the pipeline.
	Decide(ctx context.Context, msg types.NormalizedMessage)

	Stop() error
	Cleanup() error
}

// OutputProvider realizes one side effect (TTS, subtitle overlay, avatar
// control, …) in response to a published Intent. The Output Provider
// Manager owns the single decision.intent subscription and calls Execute
// directly on every provider per received Intent; a provider does not
// subscribe to decision.intent itself.
type OutputProvider interface {
	// Start opens external resources (dials a websocket, opens a device)
	// and, if this provider consumes audio, subscribes to the Audio
	// Stream Channel.
	Start(ctx context.Context, bus *eventbus.Bus) error

	// Execute performs the side effect. It must respect the timeout the
	// caller (the Output Provider Manager) imposes via ctx.
	Execute(ctx context.Context, intent types.Intent) error

	Stop() error
	Cleanup() error
}

// RegistrationInfo is the canonical manual-registration record a provider
// package exposes to its register.go init list.
type RegistrationInfo struct {
	Layer  string
	Name   string
	Source string
}
