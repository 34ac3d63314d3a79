// Package anyllm adapts github.com/mozilla-ai/any-llm-go to the llm.Provider
// contract, giving the LLM manager one constructor for every backend the
// library speaks (OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral,
// Groq, llama.cpp, llamafile).
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest")
//
// With no explicit API-key option, each backend reads its usual environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
package anyllm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// backends maps a config-facing backend name to its any-llm constructor.
var backends = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Provider implements llm.Provider over one any-llm backend and model.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New constructs a Provider for the named backend and model. backendName
// must be a key of the backend table; the error for an unknown name lists
// the valid ones.
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	construct, ok := backends[strings.ToLower(backendName)]
	if !ok {
		known := make([]string, 0, len(backends))
		for name := range backends {
			known = append(known, name)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("anyllm: unknown backend %q, have %v", backendName, known)
	}

	backend, err := construct(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: building %s backend: %w", backendName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// Complete implements llm.Provider with a single blocking completion.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: backend returned no choices")
	}

	choice := resp.Choices[0]
	out := &llm.CompletionResponse{Content: choice.Message.ContentString()}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if resp.Usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// StreamCompletion implements llm.Provider. Text deltas are forwarded as
// they arrive; tool-call fragments are stitched together by index and
// emitted with the finishing chunk, since no caller can act on half an
// arguments string.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	deltas, errs := p.backend.CompletionStream(ctx, p.params(req))

	out := make(chan llm.Chunk, 16)
	go func() {
		defer close(out)
		var calls []types.ToolCall

		emit := func(chunk llm.Chunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for delta := range deltas {
			if len(delta.Choices) == 0 {
				continue
			}
			choice := delta.Choices[0]

			for i, frag := range choice.Delta.ToolCalls {
				for len(calls) <= i {
					calls = append(calls, types.ToolCall{})
				}
				if frag.ID != "" {
					calls[i].ID = frag.ID
				}
				if frag.Function.Name != "" {
					calls[i].Name = frag.Function.Name
				}
				calls[i].Arguments += frag.Function.Arguments
			}

			chunk := llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}
			if choice.FinishReason != "" && len(calls) > 0 {
				chunk.ToolCalls = calls
				calls = nil
			}
			if !emit(chunk) {
				return
			}
		}

		if err := <-errs; err != nil {
			emit(llm.Chunk{FinishReason: "error", Text: err.Error()})
		}
	}()
	return out, nil
}

// CountTokens implements llm.Provider with a character-count estimate
// (roughly four characters per token plus a small per-message overhead).
// Good enough for budget checks; not a tokenizer.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	var total int
	for _, m := range messages {
		total += len(m.Content)/4 + 4
	}
	return total, nil
}

// Capabilities implements llm.Provider from a static model-family table.
func (p *Provider) Capabilities() types.ModelCapabilities {
	lower := strings.ToLower(p.model)
	for _, rule := range capabilityRules {
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(lower, prefix) {
				return rule.caps
			}
		}
	}
	// Unknown model: assume a modern tool-calling chat model.
	return types.ModelCapabilities{
		ContextWindow:       128_000,
		MaxOutputTokens:     4_096,
		SupportsToolCalling: true,
		SupportsStreaming:   true,
	}
}

// capabilityRules is checked in order; the first prefix match wins, so
// longer/more specific prefixes come before their family's catch-all.
var capabilityRules = []struct {
	prefixes []string
	caps     types.ModelCapabilities
}{
	{
		prefixes: []string{"gpt-4o", "gpt-4.1"},
		caps:     types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsToolCalling: true, SupportsStreaming: true, SupportsVision: true},
	},
	{
		prefixes: []string{"gpt-4-turbo"},
		caps:     types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsToolCalling: true, SupportsStreaming: true, SupportsVision: true},
	},
	{
		prefixes: []string{"gpt-3.5"},
		caps:     types.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096, SupportsToolCalling: true, SupportsStreaming: true},
	},
	{
		prefixes: []string{"o1-mini", "o3-mini"},
		caps:     types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536, SupportsStreaming: true},
	},
	{
		prefixes: []string{"o1", "o3"},
		caps:     types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsToolCalling: true, SupportsStreaming: true, SupportsVision: true},
	},
	{
		prefixes: []string{"claude"},
		caps:     types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192, SupportsToolCalling: true, SupportsStreaming: true, SupportsVision: true},
	},
	{
		prefixes: []string{"gemini-1.5-pro"},
		caps:     types.ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192, SupportsToolCalling: true, SupportsStreaming: true, SupportsVision: true},
	},
	{
		prefixes: []string{"gemini"},
		caps:     types.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsToolCalling: true, SupportsStreaming: true, SupportsVision: true},
	},
}

// params translates an llm.CompletionRequest into any-llm's parameter shape.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	out := anyllmlib.CompletionParams{Model: p.model}

	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msg := anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
				ID:   call.ID,
				Type: "function",
				Function: anyllmlib.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		out.MaxTokens = &n
	}
	for _, def := range req.Tools {
		out.Tools = append(out.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}
