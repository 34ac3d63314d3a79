// Package llm is the contract between the LLM manager and a concrete chat
// backend. A Provider wraps one remote or local model API behind a uniform
// surface — blocking completion, streaming completion, token estimation,
// capability inspection — so the layers above never touch an SDK directly.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation: return promptly, and close any channel they handed out.
package llm

import (
	"context"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Usage is the backend's token accounting for one exchange. Counts are in
// the model's own token unit, so the same text can cost differently across
// backends.
type Usage struct {
	// PromptTokens covers the input messages and system prompt.
	PromptTokens int

	// CompletionTokens covers the generated response.
	CompletionTokens int

	// TotalTokens is the sum, passed through when the backend reports it
	// directly.
	TotalTokens int
}

// CompletionRequest is one model call. Messages must be non-empty; the
// zero value is not a valid request.
type CompletionRequest struct {
	// Messages is the conversation in order; the last entry drives the
	// response.
	Messages []types.Message

	// Tools offers function definitions the model may call. Callers
	// should check Capabilities().SupportsToolCalling before setting it.
	Tools []types.ToolDefinition

	// Temperature sets sampling randomness in [0.0, 2.0]; zero asks for
	// the backend's default.
	Temperature float64

	// MaxTokens caps the generated length; zero means backend default.
	MaxTokens int

	// SystemPrompt is injected ahead of the conversation. Backends with a
	// native system slot use it; others prepend a "system"-role message.
	SystemPrompt string
}

// Chunk is one streamed fragment. Any combination of the fields may be set
// in a single chunk.
type Chunk struct {
	// Text is this fragment's incremental content.
	Text string

	// FinishReason is non-empty only on the final chunk: "stop",
	// "length", "tool_calls", or "error" for a mid-stream failure.
	FinishReason string

	// ToolCalls carries requested tool invocations, assembled by the
	// implementation so arguments arrive whole.
	ToolCalls []types.ToolCall
}

// CompletionResponse is the blocking call's result.
type CompletionResponse struct {
	// Content is the full reply text; empty when the model answered only
	// with tool calls.
	Content string

	// ToolCalls are the model's requested invocations; the caller runs
	// them and feeds results back as "tool"-role messages.
	ToolCalls []types.ToolCall

	// Usage is this exchange's token accounting.
	Usage Usage
}

// Provider is one chat backend.
type Provider interface {
	// StreamCompletion starts a streaming completion and returns the
	// chunk channel, which the implementation closes when generation
	// ends or ctx is cancelled. A non-nil error means the stream never
	// started; failures after that arrive as a Chunk with FinishReason
	// "error". Callers must drain the channel.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the whole response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates what messages would occupy in the model's
	// context window. Estimates should err on the high side — the caller
	// uses them to stay under budget.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities reports the model's static feature set; constant for
	// the Provider's lifetime.
	Capabilities() types.ModelCapabilities
}
