// Package ruleprovider implements a local, no-external-dependency
// DecisionProvider that matches message text against keyword and regex
// rules loaded from a TOML rules file, the same format every other config
// artifact in this project uses.
package ruleprovider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "rule_engine"

// MatchMode controls whether all or any configured keyword must match.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// Rule is a single keyword/regex match rule.
type Rule struct {
	Name          string            `toml:"name"`
	Keywords      []string          `toml:"keywords"`
	Regex         string            `toml:"regex"`
	Response      string            `toml:"response"`
	Priority      int               `toml:"priority"`
	MetadataMatch map[string]string `toml:"metadata_match"`

	compiledRegex *regexp.Regexp
}

type rulesFile struct {
	Rules []Rule `toml:"rules"`
}

// Config controls the rule engine provider.
type Config struct {
	RulesFile       string
	DefaultResponse string
	CaseSensitive   bool
	MatchMode       MatchMode
}

func (c Config) normalized() Config {
	if c.DefaultResponse == "" {
		c.DefaultResponse = "I don't understand."
	}
	if c.MatchMode != MatchAll {
		c.MatchMode = MatchAny
	}
	return c
}

// Provider matches incoming text against a priority-ordered rule list.
type Provider struct {
	cfg    Config
	logger *slog.Logger
	rules  []Rule

	mu  sync.Mutex
	bus *eventbus.Bus

	totalRequests atomic.Uint64
	matchedRules  atomic.Uint64
}

// New constructs the rule engine provider and loads its rules file.
func New(cfg map[string]any, _ provider.Context) (provider.DecisionProvider, error) {
	c := Config{}
	if v, ok := cfg["rules_file"].(string); ok {
		c.RulesFile = v
	}
	if v, ok := cfg["default_response"].(string); ok {
		c.DefaultResponse = v
	}
	if v, ok := cfg["case_sensitive"].(bool); ok {
		c.CaseSensitive = v
	}
	if v, ok := cfg["match_mode"].(string); ok {
		c.MatchMode = MatchMode(v)
	}
	c = c.normalized()

	p := &Provider{cfg: c, logger: slog.Default().With("provider", Name)}
	if c.RulesFile != "" {
		rules, err := loadRules(c.RulesFile)
		if err != nil {
			p.logger.Error("failed to load rules file, continuing with no rules", "file", c.RulesFile, "error", err)
		} else {
			p.rules = rules
		}
	}
	return p, nil
}

func loadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ruleprovider: read rules file: %w", err)
	}

	var parsed rulesFile
	if _, err := toml.Decode(string(data), &parsed); err != nil {
		return nil, fmt.Errorf("ruleprovider: decode rules file: %w", err)
	}

	for i := range parsed.Rules {
		r := &parsed.Rules[i]
		if len(r.Keywords) == 0 && r.Regex == "" {
			return nil, fmt.Errorf("ruleprovider: rule #%d must have keywords or regex", i)
		}
		if r.Response == "" {
			return nil, fmt.Errorf("ruleprovider: rule #%d must have a response", i)
		}
		if r.Regex != "" {
			re, err := regexp.Compile("(?i)" + r.Regex)
			if err != nil {
				return nil, fmt.Errorf("ruleprovider: rule #%d invalid regex: %w", i, err)
			}
			r.compiledRegex = re
		}
	}

	sort.SliceStable(parsed.Rules, func(i, j int) bool { return parsed.Rules[i].Priority > parsed.Rules[j].Priority })
	return parsed.Rules, nil
}

func (p *Provider) Start(_ context.Context, bus *eventbus.Bus, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	return nil
}

func (p *Provider) Decide(ctx context.Context, msg types.NormalizedMessage) {
	p.totalRequests.Add(1)

	text := msg.Text
	if !p.cfg.CaseSensitive {
		text = strings.ToLower(text)
	}

	response := p.cfg.DefaultResponse
	for _, rule := range p.rules {
		if p.matches(rule, text, msg) {
			p.matchedRules.Add(1)
			response = rule.Response
			break
		}
	}

	intent := types.Intent{
		OriginalText: msg.Text,
		ResponseText: response,
		Emotion:      types.EmotionNeutral,
		Actions:      []types.IntentAction{{Type: types.ActionBlink, Priority: 30}},
		SourceContext: types.SourceContext{
			Source:     msg.Source,
			DataType:   msg.DataType,
			Importance: msg.Importance,
		},
		Metadata: map[string]any{"parser": Name},
	}

	p.mu.Lock()
	bus := p.bus
	p.mu.Unlock()
	if bus == nil {
		return
	}
	if err := bus.Emit(ctx, eventregistry.DecisionIntent, eventregistry.DecisionIntentPayload{
		Intent: intent, Provider: Name,
	}, Name); err != nil {
		p.logger.Warn("failed to emit decision.intent", "error", err)
	}
}

func (p *Provider) matches(rule Rule, text string, msg types.NormalizedMessage) bool {
	if len(rule.Keywords) > 0 {
		matched := p.cfg.MatchMode == MatchAll
		for _, kw := range rule.Keywords {
			if !p.cfg.CaseSensitive {
				kw = strings.ToLower(kw)
			}
			found := strings.Contains(text, kw)
			switch p.cfg.MatchMode {
			case MatchAll:
				if !found {
					matched = false
				}
			default:
				if found {
					matched = true
				}
			}
		}
		if matched {
			return true
		}
	}

	if rule.compiledRegex != nil && rule.compiledRegex.MatchString(text) {
		return true
	}

	if len(rule.MetadataMatch) > 0 {
		for k, v := range rule.MetadataMatch {
			if fmt.Sprint(msg.Metadata[k]) != v {
				return false
			}
		}
		return true
	}

	return false
}

func (p *Provider) Stop() error { return nil }

func (p *Provider) Cleanup() error {
	p.logger.Info("rule engine cleaned up", "total", p.totalRequests.Load(), "matched", p.matchedRules.Load())
	return nil
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "decision", Name: Name, Source: "internal/decision/ruleprovider"}
}
