package input_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/decision"
	decisionmock "github.com/Mai-with-u/amaidesu/internal/decision/providers/mock"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/internal/input/providers/console"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// TestConsoleToDecisionToOutput drives the whole chain: a console line is
// normalized, published as data.message, routed through the Decision
// Provider Manager into a scripted decision provider, and its published
// Intent is observed exactly once by a decision.intent subscriber playing
// the output role.
func TestConsoleToDecisionToOutput(t *testing.T) {
	logger := slog.Default()
	bus := eventbus.New(nil, logger)
	reg := registry.New(logger)
	reg.RegisterDecision("mock", decisionmock.NewFactory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decisionMgr := decision.NewManager(bus, reg, provider.Context{EventBus: bus}, logger)
	if err := decisionMgr.Setup(ctx, "mock", nil, decision.DecisionConfig{}); err != nil {
		t.Fatalf("decision Setup: %v", err)
	}
	defer decisionMgr.Cleanup(ctx)

	var (
		mu      sync.Mutex
		intents []types.Intent
	)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		mu.Lock()
		intents = append(intents, payload.Intent)
		mu.Unlock()
		return nil
	}, 0)

	src := console.NewWithReader(strings.NewReader("hello\n"), console.Config{})
	inputMgr := input.NewManager(bus, input.NewPipelineManager(), logger)
	if err := inputMgr.StartAll(ctx, []provider.InputProvider{src}); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer inputMgr.StopAll(context.Background())

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(intents)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for decision.intent")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(intents) != 1 {
		t.Fatalf("intents = %d, want exactly 1", len(intents))
	}
	got := intents[0]
	if got.ResponseText != "hi" {
		t.Errorf("ResponseText = %q, want %q", got.ResponseText, "hi")
	}
	if got.Emotion != types.EmotionNeutral {
		t.Errorf("Emotion = %q, want neutral", got.Emotion)
	}
	if len(got.Actions) != 1 || got.Actions[0].Type != types.ActionBlink || got.Actions[0].Priority != 30 {
		t.Errorf("Actions = %+v, want one blink action with priority 30", got.Actions)
	}
}
