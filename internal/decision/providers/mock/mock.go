// Package mock provides a scriptable DecisionProvider double for tests.
package mock

import (
	"context"
	"sync"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Compile-time interface assertion.
var _ provider.DecisionProvider = (*Provider)(nil)

// Provider publishes a fixed Intent (or a caller-supplied IntentFn) for
// every Decide call.
type Provider struct {
	mu  sync.Mutex
	bus *eventbus.Bus

	// Intent is published verbatim for every Decide call if IntentFn is nil.
	Intent types.Intent
	// IntentFn, if set, builds the Intent from the incoming message.
	IntentFn func(types.NormalizedMessage) types.Intent

	CallCountStart   int
	CallCountDecide  int
	CallCountStop    int
	CallCountCleanup int
}

// New returns an unstarted mock decision provider publishing a neutral
// "hi" response by default (the happy-path scenario's expected Intent).
func New() *Provider {
	return &Provider{
		Intent: types.Intent{
			ResponseText: "hi",
			Emotion:      types.EmotionNeutral,
			Actions:      []types.IntentAction{{Type: types.ActionBlink, Priority: 30}},
		},
	}
}

// NewFactory adapts New to the registry.DecisionFactory signature, for
// tests that register the mock provider into a live Provider Registry.
func NewFactory(map[string]any, provider.Context) (provider.DecisionProvider, error) {
	return New(), nil
}

func (p *Provider) Start(_ context.Context, bus *eventbus.Bus, _ map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = bus
	p.CallCountStart++
	return nil
}

func (p *Provider) Decide(ctx context.Context, msg types.NormalizedMessage) {
	p.mu.Lock()
	p.CallCountDecide++
	bus := p.bus
	intent := p.Intent
	fn := p.IntentFn
	p.mu.Unlock()

	if fn != nil {
		intent = fn(msg)
	}
	intent.OriginalText = msg.Text
	intent.SourceContext = types.SourceContext{
		Source:     msg.Source,
		DataType:   msg.DataType,
		Importance: msg.Importance,
	}

	if bus == nil {
		return
	}
	_ = bus.Emit(ctx, eventregistry.DecisionIntent, eventregistry.DecisionIntentPayload{
		Intent:   intent,
		Provider: "mock_decision",
	}, "mock_decision")
}

func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	return nil
}

func (p *Provider) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountCleanup++
	return nil
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "decision", Name: "mock_decision", Source: "internal/decision/providers/mock"}
}
