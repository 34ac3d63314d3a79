package replayprovider

import (
	"context"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestProvider_RepliesWithOriginalText(t *testing.T) {
	p, err := New(nil, provider.Context{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prov := p.(*Provider)

	bus := eventbus.New(nil, nil)
	if err := prov.Start(context.Background(), bus, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	received := make(chan eventregistry.DecisionIntentPayload, 1)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		received <- payload
		return nil
	}, 0)

	prov.Decide(context.Background(), types.NormalizedMessage{Text: "echo me", Source: "console_input"})

	select {
	case payload := <-received:
		if payload.Intent.ResponseText != "echo me" {
			t.Errorf("got %q, want %q", payload.Intent.ResponseText, "echo me")
		}
		if len(payload.Intent.Actions) != 1 || payload.Intent.Actions[0].Type != types.ActionBlink {
			t.Errorf("expected a single default blink action, got %v", payload.Intent.Actions)
		}
	case <-time.After(time.Second):
		t.Fatal("decision.intent was never published")
	}
}
