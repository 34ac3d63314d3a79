package ruleprovider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

const sampleRules = `
[[rules]]
name = "greeting"
keywords = ["hello", "hi"]
response = "hi there!"
priority = 100

[[rules]]
name = "thanks"
regex = "^(thanks|thank you)"
response = "you're welcome"
priority = 90
`

func TestProvider_MatchesKeywordRule(t *testing.T) {
	path := writeRulesFile(t, sampleRules)
	p, err := New(map[string]any{"rules_file": path, "default_response": "huh?"}, provider.Context{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prov := p.(*Provider)

	bus := eventbus.New(nil, nil)
	prov.Start(context.Background(), bus, nil)

	received := make(chan eventregistry.DecisionIntentPayload, 1)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		received <- payload
		return nil
	}, 0)

	prov.Decide(context.Background(), types.NormalizedMessage{Text: "hello there"})

	select {
	case payload := <-received:
		if payload.Intent.ResponseText != "hi there!" {
			t.Errorf("got %q, want %q", payload.Intent.ResponseText, "hi there!")
		}
	case <-time.After(time.Second):
		t.Fatal("decision.intent was never published")
	}
}

func TestProvider_FallsBackToDefaultResponse(t *testing.T) {
	path := writeRulesFile(t, sampleRules)
	p, _ := New(map[string]any{"rules_file": path, "default_response": "huh?"}, provider.Context{})
	prov := p.(*Provider)

	bus := eventbus.New(nil, nil)
	prov.Start(context.Background(), bus, nil)

	received := make(chan eventregistry.DecisionIntentPayload, 1)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		received <- payload
		return nil
	}, 0)

	prov.Decide(context.Background(), types.NormalizedMessage{Text: "what is the weather"})

	select {
	case payload := <-received:
		if payload.Intent.ResponseText != "huh?" {
			t.Errorf("got %q, want default response", payload.Intent.ResponseText)
		}
	case <-time.After(time.Second):
		t.Fatal("decision.intent was never published")
	}
}

func TestProvider_RegexRuleMatches(t *testing.T) {
	path := writeRulesFile(t, sampleRules)
	p, _ := New(map[string]any{"rules_file": path}, provider.Context{})
	prov := p.(*Provider)

	bus := eventbus.New(nil, nil)
	prov.Start(context.Background(), bus, nil)

	received := make(chan eventregistry.DecisionIntentPayload, 1)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		received <- payload
		return nil
	}, 0)

	prov.Decide(context.Background(), types.NormalizedMessage{Text: "thank you so much"})

	select {
	case payload := <-received:
		if payload.Intent.ResponseText != "you're welcome" {
			t.Errorf("got %q", payload.Intent.ResponseText)
		}
	case <-time.After(time.Second):
		t.Fatal("decision.intent was never published")
	}
}
