// Package replayprovider implements a DecisionProvider that replays the
// incoming NormalizedMessage's text as the Intent's response text, with no
// decision logic at all. It exists to let an operator verify the Input ->
// Decision -> Output data flow end to end without involving an LLM or rule
// set.
package replayprovider

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "replay"

// Config controls the replay provider.
type Config struct {
	// AddDefaultAction appends a low-priority blink action to every Intent,
	// the least surprising default for a debug provider.
	AddDefaultAction bool
}

// Provider is a DecisionProvider that echoes NormalizedMessage.Text as the
// response text of every published Intent.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	bus *eventbus.Bus

	replayCount atomic.Uint64
}

// New constructs the replay provider from its config section.
func New(cfg map[string]any, _ provider.Context) (provider.DecisionProvider, error) {
	c := Config{AddDefaultAction: true}
	if v, ok := cfg["add_default_action"].(bool); ok {
		c.AddDefaultAction = v
	}
	return &Provider{cfg: c, logger: slog.Default().With("provider", Name)}, nil
}

func (p *Provider) Start(_ context.Context, bus *eventbus.Bus, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	return nil
}

func (p *Provider) Decide(ctx context.Context, msg types.NormalizedMessage) {
	count := p.replayCount.Add(1)

	var actions []types.IntentAction
	if p.cfg.AddDefaultAction {
		actions = append(actions, types.IntentAction{Type: types.ActionBlink, Priority: 30})
	}

	intent := types.Intent{
		OriginalText: msg.Text,
		ResponseText: msg.Text,
		Emotion:      types.EmotionNeutral,
		Actions:      actions,
		SourceContext: types.SourceContext{
			Source:     msg.Source,
			DataType:   msg.DataType,
			Importance: msg.Importance,
		},
		Metadata: map[string]any{"parser": Name, "replay_count": count},
	}

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
	p.logger.Info("replay provider cleaned up", "replayed", p.replayCount.Load())
	return nil
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "decision", Name: Name, Source: "internal/decision/replayprovider"}
}
