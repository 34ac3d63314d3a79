// Package keywordprovider implements a DecisionProvider that matches
// incoming text against keyword rules and emits an Intent carrying the
// matched rule's IntentAction, subject to a per-rule and global cooldown.
// Unlike ruleprovider it is action-first: its purpose is triggering avatar
// side effects (expressions, hotkeys) rather than generating a reply.
package keywordprovider

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "keyword_action"

// MatchMode controls how a rule's keywords are tested against the text.
type MatchMode string

const (
	MatchExact      MatchMode = "exact"
	MatchStartsWith MatchMode = "startswith"
	MatchEndsWith   MatchMode = "endswith"
	MatchAnywhere   MatchMode = "anywhere"
)

// ActionRule is one keyword-triggered action.
type ActionRule struct {
	Name       string
	Enabled    bool
	Keywords   []string
	MatchMode  MatchMode
	Cooldown   time.Duration
	ActionType types.ActionType
	Params     map[string]any
	Priority   int
}

// Config controls the keyword-action provider.
type Config struct {
	Actions         []ActionRule
	GlobalCooldown  time.Duration
	DefaultResponse string
}

// Provider fires a configured action (and optional canned response) the
// first time any rule's keywords match, subject to cooldowns.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	mu             sync.Mutex
	bus            *eventbus.Bus
	lastTriggered  map[string]time.Time
	lastGlobalFire time.Time
	matchCount     int
	cooldownSkips  int
}

// New constructs the keyword-action provider from its config section. The
// config map's "actions" entry, if present, is expected in the shape
// produced by internal/config's TOML array-of-tables decode.
func New(cfg map[string]any, _ provider.Context) (provider.DecisionProvider, error) {
	c := Config{GlobalCooldown: time.Second}
	if v, ok := cfg["global_cooldown_seconds"].(float64); ok {
		c.GlobalCooldown = time.Duration(v * float64(time.Second))
	}
	if v, ok := cfg["default_response"].(string); ok {
		c.DefaultResponse = v
	}
	if raw, ok := cfg["actions"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			c.Actions = append(c.Actions, parseActionRule(m))
		}
	}

	return &Provider{
		cfg:           c,
		logger:        slog.Default().With("provider", Name),
		lastTriggered: make(map[string]time.Time),
	}, nil
}

func parseActionRule(m map[string]any) ActionRule {
	r := ActionRule{Enabled: true, MatchMode: MatchAnywhere, Cooldown: time.Second, Priority: 50}
	if v, ok := m["name"].(string); ok {
		r.Name = v
	}
	if v, ok := m["enabled"].(bool); ok {
		r.Enabled = v
	}
	if raw, ok := m["keywords"].([]any); ok {
		for _, k := range raw {
			if s, ok := k.(string); ok {
				r.Keywords = append(r.Keywords, s)
			}
		}
	}
	if v, ok := m["match_mode"].(string); ok {
		r.MatchMode = MatchMode(v)
	}
	if v, ok := m["cooldown_seconds"].(float64); ok {
		r.Cooldown = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["action_type"].(string); ok {
		r.ActionType = types.ActionType(v)
	}
	if v, ok := m["action_params"].(map[string]any); ok {
		r.Params = v
	}
	if v, ok := m["priority"].(float64); ok {
		r.Priority = int(v)
	}
	return r
}

func (p *Provider) Start(_ context.Context, bus *eventbus.Bus, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	return nil
}

func (p *Provider) Decide(ctx context.Context, msg types.NormalizedMessage) {
	matchText := strings.ToLower(msg.Text)

	p.mu.Lock()
	now := time.Now()
	if now.Sub(p.lastGlobalFire) < p.cfg.GlobalCooldown {
		p.cooldownSkips++
		p.mu.Unlock()
		return
	}

	var matched *ActionRule
	for i := range p.cfg.Actions {
		rule := &p.cfg.Actions[i]
		if !rule.Enabled {
			continue
		}
		if last, ok := p.lastTriggered[rule.Name]; ok && now.Sub(last) < rule.Cooldown {
			continue
		}
		if ruleMatches(*rule, matchText) {
			matched = rule
			break
		}
	}

	if matched == nil {
		p.mu.Unlock()
		return
	}

	p.matchCount++
	p.lastTriggered[matched.Name] = now
	p.lastGlobalFire = now
	bus := p.bus
	p.mu.Unlock()

	intent := types.Intent{
		OriginalText: msg.Text,
		ResponseText: p.cfg.DefaultResponse,
		Emotion:      types.EmotionNeutral,
		Actions: []types.IntentAction{{
			Type:     matched.ActionType,
			Params:   matched.Params,
			Priority: matched.Priority,
		}},
		SourceContext: types.SourceContext{
			Source:     msg.Source,
			DataType:   msg.DataType,
			Importance: msg.Importance,
		},
		Metadata: map[string]any{"parser": Name, "matched_rule": matched.Name},
	}

	if bus == nil {
		return
	}
	if err := bus.Emit(ctx, eventregistry.DecisionIntent, eventregistry.DecisionIntentPayload{
		Intent: intent, Provider: Name,
	}, Name); err != nil {
		p.logger.Warn("failed to emit decision.intent", "error", err)
	}
}

func ruleMatches(rule ActionRule, text string) bool {
	for _, kw := range rule.Keywords {
		kw = strings.ToLower(kw)
		var hit bool
		switch rule.MatchMode {
		case MatchExact:
			hit = text == kw
		case MatchStartsWith:
			hit = strings.HasPrefix(text, kw)
		case MatchEndsWith:
			hit = strings.HasSuffix(text, kw)
		default:
			hit = strings.Contains(text, kw)
		}
		if hit {
			return true
		}
	}
	return false
}

func (p *Provider) Stop() error { return nil }

func (p *Provider) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("keyword-action provider cleaned up", "matches", p.matchCount, "cooldown_skips", p.cooldownSkips)
	return nil
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "decision", Name: Name, Source: "internal/decision/keywordprovider"}
}
