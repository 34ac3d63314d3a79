// Package llmprovider implements a DecisionProvider backed by an LLM chat
// client. It builds a structured prompt via the prompt service, cleans and
// parses the model's JSON response into an Intent (strip markdown fences,
// slice to the outermost braces, drop trailing commas), and falls back to a
// configurable degraded response when the call fails or the response is
// unparseable.
package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/llm"
	"github.com/Mai-with-u/amaidesu/internal/mcp"
	"github.com/Mai-with-u/amaidesu/internal/mcp/tier"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/resilience"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "llm"

// FallbackMode controls degraded behaviour when the LLM call or its JSON
// response fails.
type FallbackMode string

const (
	FallbackSimple FallbackMode = "simple"
	FallbackEcho   FallbackMode = "echo"
	FallbackError  FallbackMode = "error"
)

// Config controls the LLM decision provider.
type Config struct {
	Client string

	// FallbackClients are additional LLM manager client names tried, in
	// order, when the primary client fails or its circuit breaker is open.
	// Only after every client fails does FallbackMode's degraded response
	// kick in.
	FallbackClients []string

	FallbackMode FallbackMode
	Template     string

	// ToolTier pins the MCP tool budget tier. Zero means per-message
	// selection via the tier heuristics (keyword match, conversation
	// state, chat backlog).
	ToolTier mcp.BudgetTier
}

func (c Config) normalized() Config {
	if c.Client == "" {
		c.Client = "llm"
	}
	if c.FallbackMode == "" {
		c.FallbackMode = FallbackSimple
	}
	if c.Template == "" {
		c.Template = "decision/llm_structured"
	}
	return c
}

// maxToolIterations bounds how many tool-call round trips Decide performs
// before giving up and falling back, preventing a misbehaving client from
// looping forever on tool calls instead of returning a final answer.
const maxToolIterations = 3

// chatService is the subset of internal/llm.Manager this provider needs. It
// is asserted out of provider.Context.LLMService at construction time rather than
// widening the shared provider.LLMService contract every provider sees.
// ChatStructured is used instead of the simpler Chat when a toolHost is
// configured, since tool calling needs the full message/ToolCalls round trip.
type chatService interface {
	HasClient(name string) bool
	Chat(ctx context.Context, clientName, prompt string) (string, error)
	ChatStructured(ctx context.Context, clientName string, req llm.ChatRequest) (llm.ChatResponse, error)
}

// toolHost is the subset of provider.ToolHost this provider needs, asserted
// out of provider.Context.ToolHost at construction time.
type toolHost interface {
	AvailableTools(tier mcp.BudgetTier) []types.ToolDefinition
	ExecuteTool(ctx context.Context, name, args string) (*mcp.ToolResult, error)
}

// promptService is the subset of internal/prompt.Manager this provider
// needs, matching provider.Context.PromptService.
type promptService interface {
	Render(templateName string, vars map[string]any) (string, error)
}

// Provider makes decisions by prompting an LLM and parsing its structured
// JSON response into an Intent.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	bus    *eventbus.Bus
	llm    chatService
	prompt promptService
	tools  toolHost

	// clients fans one chat call out across the primary and fallback
	// client names, each behind its own circuit breaker.
	clients *resilience.FallbackGroup[string]

	// tierSel picks the per-message tool budget tier when cfg.ToolTier is
	// not pinned.
	tierSel *tier.Selector

	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
}

// New constructs the LLM decision provider from its config section and
// dependency context.
func New(cfg map[string]any, ctx provider.Context) (provider.DecisionProvider, error) {
	c := Config{}
	if v, ok := cfg["client"].(string); ok {
		c.Client = v
	}
	if v, ok := cfg["fallback_mode"].(string); ok {
		c.FallbackMode = FallbackMode(v)
	}
	if v, ok := cfg["fallback_clients"].([]any); ok {
		for _, entry := range v {
			if name, ok := entry.(string); ok && name != "" {
				c.FallbackClients = append(c.FallbackClients, name)
			}
		}
	}
	if v, ok := cfg["template"].(string); ok {
		c.Template = v
	}
	if v, ok := cfg["tool_tier"].(string); ok {
		c.ToolTier = parseBudgetTier(v)
	}
	c = c.normalized()

	p := &Provider{cfg: c, logger: slog.Default().With("provider", Name), tierSel: tier.NewSelector()}
	p.clients = resilience.NewFallbackGroup(c.Client, c.Client, resilience.FallbackConfig{})
	for _, name := range c.FallbackClients {
		p.clients.AddFallback(name, name)
	}
	if svc, ok := ctx.LLMService.(chatService); ok {
		p.llm = svc
	}
	if ctx.PromptService != nil {
		p.prompt = ctx.PromptService
	}
	if ctx.ToolHost != nil {
		if th, ok := ctx.ToolHost.(toolHost); ok {
			p.tools = th
		}
	}
	return p, nil
}

func parseBudgetTier(s string) mcp.BudgetTier {
	switch strings.ToLower(s) {
	case "standard":
		return mcp.BudgetStandard
	case "deep":
		return mcp.BudgetDeep
	default:
		// BudgetFast is the zero value, which Config.ToolTier reads as
		// "select per message".
		return mcp.BudgetFast
	}
}

func (p *Provider) Start(_ context.Context, bus *eventbus.Bus, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	if p.llm == nil {
		p.logger.Warn("no LLM chat service injected, every decision will use the fallback path")
	}
	return nil
}

func (p *Provider) Decide(ctx context.Context, msg types.NormalizedMessage) {
	p.totalRequests.Add(1)

	if p.llm == nil || !p.llm.HasClient(p.cfg.Client) {
		p.publishFallback(ctx, msg)
		return
	}

	prompt := p.buildPrompt(msg)

	toolTier := p.tierSel.Select(msg.Text, p.cfg.ToolTier)

	content, err := resilience.ExecuteWithResult(p.clients, func(client string) (string, error) {
		if !p.llm.HasClient(client) {
			return "", fmt.Errorf("llmprovider: no such client %q", client)
		}
		return p.chat(ctx, client, prompt, toolTier)
	})
	if err != nil {
		p.failedRequests.Add(1)
		p.logger.Error("llm chat call failed", "error", err)
		p.publishFallback(ctx, msg)
		return
	}

	cleaned := cleanLLMJSON(content)
	var parsed struct {
		Text    string `json:"response_text"`
		Emotion string `json:"emotion"`
		Actions []struct {
			Type     string         `json:"type"`
			Params   map[string]any `json:"params"`
			Priority int            `json:"priority"`
		} `json:"actions"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		p.failedRequests.Add(1)
		p.logger.Error("failed to parse llm json response", "error", err, "cleaned", cleaned)
		p.publishFallback(ctx, msg)
		return
	}

	p.successfulRequests.Add(1)
	p.tierSel.RecordTurn()

	emotion := types.Emotion(strings.ToLower(parsed.Emotion))
	if !emotion.Valid() {
		emotion = types.EmotionNeutral
	}

	actions := make([]types.IntentAction, 0, len(parsed.Actions))
	for _, a := range parsed.Actions {
		actions = append(actions, types.IntentAction{
			Type:     mapActionType(a.Type),
			Params:   a.Params,
			Priority: a.Priority,
		})
	}
	if len(actions) == 0 {
		actions = append(actions, types.IntentAction{Type: types.ActionBlink, Priority: 30})
	}

	intent := types.Intent{
		OriginalText: msg.Text,
		ResponseText: parsed.Text,
		Emotion:      emotion,
		Actions:      actions,
		SourceContext: types.SourceContext{
			Source:     msg.Source,
			DataType:   msg.DataType,
			Importance: msg.Importance,
		},
		Metadata: map[string]any{"parser": "llm_structured"},
	}

	p.publish(ctx, intent)
}

// chat sends prompt to client, letting the model call any tools offered by
// p.tools and feeding their results back until it settles on a final text
// response or maxToolIterations is reached. With no toolHost configured it
// falls back to a plain single-turn Chat call.
func (p *Provider) chat(ctx context.Context, client, prompt string, toolTier mcp.BudgetTier) (string, error) {
	if p.tools == nil {
		return p.llm.Chat(ctx, client, prompt)
	}

	toolDefs := p.tools.AvailableTools(toolTier)

	messages := []types.Message{{Role: "user", Content: prompt}}
	for i := 0; i < maxToolIterations; i++ {
		resp, err := p.llm.ChatStructured(ctx, client, llm.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, types.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result, err := p.tools.ExecuteTool(ctx, call.Name, call.Arguments)
			var content string
			if err != nil {
				content = fmt.Sprintf("tool error: %v", err)
			} else {
				content = result.Content
			}
			messages = append(messages, types.Message{Role: "tool", Content: content, ToolCallID: call.ID})
		}
	}
	return "", fmt.Errorf("llmprovider: exceeded %d tool-call iterations", maxToolIterations)
}

func (p *Provider) buildPrompt(msg types.NormalizedMessage) string {
	vars := map[string]any{"text": msg.Text}
	if p.prompt == nil {
		return msg.Text
	}
	rendered, err := p.prompt.Render(p.cfg.Template, vars)
	if err != nil {
		p.logger.Warn("prompt rendering failed, using raw text", "error", err)
		return msg.Text
	}
	return rendered
}

// cleanLLMJSON applies the three-step response cleanup: strip markdown
// fences, slice to the outermost braces, drop trailing commas before a
// closing brace or bracket.
func cleanLLMJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = fenceOpen.ReplaceAllString(cleaned, "")
	cleaned = fenceClose.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if first := strings.Index(cleaned, "{"); first != -1 {
		if last := strings.LastIndex(cleaned, "}"); last != -1 && last > first {
			cleaned = cleaned[first : last+1]
		}
	}

	cleaned = trailingCommaBrace.ReplaceAllString(cleaned, "}")
	cleaned = trailingCommaBracket.ReplaceAllString(cleaned, "]")
	return cleaned
}

var (
	fenceOpen            = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose           = regexp.MustCompile("\\s*```$")
	trailingCommaBrace   = regexp.MustCompile(`,\s*}`)
	trailingCommaBracket = regexp.MustCompile(`,\s*]`)
)

func mapActionType(s string) types.ActionType {
	switch strings.ToLower(s) {
	case "expression", "speak", "gesture":
		return types.ActionExpression
	case "hotkey":
		return types.ActionHotkey
	case "emoji":
		return types.ActionEmoji
	case "blink":
		return types.ActionBlink
	case "nod":
		return types.ActionNod
	case "shake":
		return types.ActionShake
	case "wave":
		return types.ActionWave
	case "clap":
		return types.ActionClap
	case "sticker":
		return types.ActionSticker
	case "motion":
		return types.ActionMotion
	case "custom":
		return types.ActionCustom
	case "game_action":
		return types.ActionGame
	default:
		return types.ActionNone
	}
}

func (p *Provider) publishFallback(ctx context.Context, msg types.NormalizedMessage) {
	var text string
	switch p.cfg.FallbackMode {
	case FallbackEcho:
		text = fmt.Sprintf("you said: %s", msg.Text)
	case FallbackError:
		p.logger.Error("llm decision failed with no fallback configured")
		return
	default:
		text = msg.Text
	}

	intent := types.Intent{
		OriginalText: msg.Text,
		ResponseText: text,
		Emotion:      types.EmotionNeutral,
		Actions:      []types.IntentAction{{Type: types.ActionBlink, Priority: 30}},
		SourceContext: types.SourceContext{
			Source:     msg.Source,
			DataType:   msg.DataType,
			Importance: msg.Importance,
		},
		Metadata: map[string]any{"parser": "llm_fallback"},
	}
	p.publish(ctx, intent)
}

func (p *Provider) publish(ctx context.Context, intent types.Intent) {
	p.mu.Lock()
	bus := p.bus
	p.mu.Unlock()
	if bus == nil {
		p.logger.Error("event bus not initialized, cannot publish decision.intent")
		return
	}
	if err := bus.Emit(ctx, eventregistry.DecisionIntent, eventregistry.DecisionIntentPayload{
		Intent: intent, Provider: Name,
	}, Name); err != nil {
		p.logger.Warn("failed to emit decision.intent", "error", err)
	}
}

func (p *Provider) Stop() error { return nil }

func (p *Provider) Cleanup() error {
	total := p.totalRequests.Load()
	var rate float64
	if total > 0 {
		rate = float64(p.successfulRequests.Load()) / float64(total) * 100
	}
	p.logger.Info("llm decision provider cleaned up",
		"total", total, "successful", p.successfulRequests.Load(), "failed", p.failedRequests.Load(), "success_rate", rate)
	return nil
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "decision", Name: Name, Source: "internal/decision/llmprovider"}
}
