// Package llm implements the LLM manager: a named pool of chat-capable
// backends (e.g. "llm", "llm_fast", "vlm") that decision and output
// providers address by name through provider.Context.LLMService. Each
// named client wraps a pkg/provider/llm.Provider in a registry keyed by
// config name, backed by github.com/mozilla-ai/any-llm-go for multi-backend
// support.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// ErrUnknownClient is returned when a requested client name has no backend
// registered.
var ErrUnknownClient = errors.New("llm: unknown client")

// ChatRequest carries a single conversational exchange to a named client.
// It generalizes pkg/provider/llm.CompletionRequest with the manager-level
// concerns (retry policy) that a raw Provider does not know about.
type ChatRequest struct {
	Messages     []types.Message
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Tools        []types.ToolDefinition
	Retry        RetryConfig
}

// ChatResponse is the manager-level response, mirroring
// pkg/provider/llm.CompletionResponse.
type ChatResponse struct {
	Content   string
	ToolCalls []types.ToolCall
	Usage     llm.Usage
}

// Chunk is a single streamed fragment, mirroring pkg/provider/llm.Chunk.
type Chunk = llm.Chunk

// VisionRequest augments a ChatRequest with image inputs. The manager does
// not decode or validate image content; that is the backend's concern.
type VisionRequest struct {
	ChatRequest
	Images [][]byte
}

// RetryConfig enables opt-in exponential backoff with jitter around a
// client call. The zero value disables retries (MaxAttempts <= 1 is treated
// as a single attempt, no retry).
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (r RetryConfig) normalized() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 1
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 250 * time.Millisecond
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 5 * time.Second
	}
	return r
}

// Manager is a named pool of LLM backends. It has no knowledge of prompt
// content; callers (decision/output providers, via internal/prompt) supply
// fully-rendered text.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]llm.Provider
}

// NewManager returns an empty Manager. Backends are registered with
// Register after construction, typically during cmd/amaidesu wiring.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, clients: make(map[string]llm.Provider)}
}

// Register binds name (e.g. "llm", "llm_fast", "vlm") to backend. A second
// Register call for the same name replaces the backend and logs a warning,
// matching internal/registry's re-registration semantics.
func (m *Manager) Register(name string, backend llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[name]; exists {
		m.logger.Warn("re-registering llm client", "name", name)
	}
	m.clients[name] = backend
}

// HasClient reports whether name has a registered backend. Satisfies
// provider.Context.LLMService and the narrower chatService interface
// internal/decision/llmprovider asserts against it.
func (m *Manager) HasClient(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[name]
	return ok
}

// Chat is the minimal convenience call used by internal/decision/llmprovider:
// a single-turn prompt in, full text out, using the named client's default
// parameters.
func (m *Manager) Chat(ctx context.Context, clientName, prompt string) (string, error) {
	resp, err := m.ChatStructured(ctx, clientName, ChatRequest{
		Messages: []types.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ChatStructured sends req to clientName's backend and waits for the full
// response, retrying per req.Retry when configured.
func (m *Manager) ChatStructured(ctx context.Context, clientName string, req ChatRequest) (ChatResponse, error) {
	backend, err := m.client(clientName)
	if err != nil {
		return ChatResponse{}, err
	}

	creq := toCompletionRequest(req)
	resp, err := withRetry(ctx, req.Retry.normalized(), func() (*llm.CompletionResponse, error) {
		return backend.Complete(ctx, creq)
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm: client %q: %w", clientName, err)
	}
	return ChatResponse{Content: resp.Content, ToolCalls: resp.ToolCalls, Usage: resp.Usage}, nil
}

// StreamChat sends req to clientName's backend and returns a channel of
// incremental chunks. Retries only cover the initial connection attempt;
// once streaming starts, a mid-stream error surfaces as a Chunk with
// FinishReason "error", per pkg/provider/llm.Provider's contract.
func (m *Manager) StreamChat(ctx context.Context, clientName string, req ChatRequest) (<-chan Chunk, error) {
	backend, err := m.client(clientName)
	if err != nil {
		return nil, err
	}
	creq := toCompletionRequest(req)
	ch, err := withRetry(ctx, req.Retry.normalized(), func() (<-chan llm.Chunk, error) {
		return backend.StreamCompletion(ctx, creq)
	})
	if err != nil {
		return nil, fmt.Errorf("llm: client %q: %w", clientName, err)
	}
	return ch, nil
}

// Vision sends a multimodal request to clientName's backend. Each image is
// represented by one appended user message with the text "[image attached]";
// the image bytes themselves are not encoded into the request.
func (m *Manager) Vision(ctx context.Context, clientName string, req VisionRequest) (ChatResponse, error) {
	backend, err := m.client(clientName)
	if err != nil {
		return ChatResponse{}, err
	}
	if !backend.Capabilities().SupportsVision {
		return ChatResponse{}, fmt.Errorf("llm: client %q does not support vision", clientName)
	}

	creq := toCompletionRequest(req.ChatRequest)
	for range req.Images {
		creq.Messages = append(creq.Messages, types.Message{Role: "user", Content: "[image attached]"})
	}
	resp, err := withRetry(ctx, req.Retry.normalized(), func() (*llm.CompletionResponse, error) {
		return backend.Complete(ctx, creq)
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm: client %q: %w", clientName, err)
	}
	return ChatResponse{Content: resp.Content, ToolCalls: resp.ToolCalls, Usage: resp.Usage}, nil
}

// CountTokens estimates token usage for messages using clientName's backend.
func (m *Manager) CountTokens(clientName string, messages []types.Message) (int, error) {
	backend, err := m.client(clientName)
	if err != nil {
		return 0, err
	}
	return backend.CountTokens(messages)
}

// Capabilities returns clientName's static backend capabilities.
func (m *Manager) Capabilities(clientName string) (types.ModelCapabilities, error) {
	backend, err := m.client(clientName)
	if err != nil {
		return types.ModelCapabilities{}, err
	}
	return backend.Capabilities(), nil
}

func (m *Manager) client(name string) (llm.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	backend, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClient, name)
	}
	return backend, nil
}

func toCompletionRequest(req ChatRequest) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:     req.Messages,
		Tools:        req.Tools,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	}
}

// withRetry runs call up to cfg.MaxAttempts times with exponential backoff
// and full jitter between attempts, stopping early on ctx cancellation.
func withRetry[T any](ctx context.Context, cfg RetryConfig, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			jittered := time.Duration(rand.Int63n(int64(delay) + 1))
			select {
			case <-time.After(jittered):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err := call()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
