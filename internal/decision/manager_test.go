package decision_test

import (
	"context"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/decision"
	"github.com/Mai-with-u/amaidesu/internal/decision/providers/mock"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func newTestManager(t *testing.T) (*decision.Manager, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(nil, nil)
	reg := registry.New(nil)
	reg.RegisterDecision("mock_decision", mock.NewFactory)
	return decision.NewManager(bus, reg, provider.Context{EventBus: bus}, nil), bus
}

func TestManager_HappyPath(t *testing.T) {
	m, bus := newTestManager(t)
	ctx := context.Background()

	if err := m.Setup(ctx, "mock_decision", nil, decision.DecisionConfig{}); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	received := make(chan eventregistry.DecisionIntentPayload, 1)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		received <- payload
		return nil
	}, 0)

	err := bus.Emit(ctx, eventregistry.DataMessage, eventregistry.DataMessagePayload{
		Message: types.NormalizedMessage{Text: "hello", Source: "console_input", DataType: types.DataTypeText, Importance: 0.5},
	}, "test")
	if err != nil {
		t.Fatalf("emit data.message: %v", err)
	}

	select {
	case payload := <-received:
		if payload.Intent.ResponseText != "hi" {
			t.Errorf("got response_text %q, want %q", payload.Intent.ResponseText, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("decision.intent was never published")
	}

	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestManager_DecideWithoutSetupIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	m.Decide(context.Background(), types.NormalizedMessage{Text: "x"})
}

func TestManager_SwitchReplacesActiveProvider(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Setup(ctx, "mock_decision", nil, decision.DecisionConfig{}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if got := m.CurrentProvider(); got != "mock_decision" {
		t.Fatalf("CurrentProvider = %q", got)
	}
	if err := m.Switch(ctx, "mock_decision", nil); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if got := m.CurrentProvider(); got != "mock_decision" {
		t.Fatalf("CurrentProvider after switch = %q", got)
	}
	_ = m.Cleanup(ctx)
}

func TestManager_SetupUnknownProviderFails(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Setup(context.Background(), "does_not_exist", nil, decision.DecisionConfig{}); err == nil {
		t.Fatal("expected an error for an unregistered provider")
	}
}

func TestManager_SetupResolvesActiveProviderFromConfig(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Setup(context.Background(), "", nil, decision.DecisionConfig{
		ActiveProvider:     "mock_decision",
		AvailableProviders: []string{"mock_decision"},
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if got := m.CurrentProvider(); got != "mock_decision" {
		t.Errorf("CurrentProvider = %q, want mock_decision", got)
	}
}

func TestManager_SetupProceedsWhenNotInAvailableProviders(t *testing.T) {
	m, _ := newTestManager(t)

	// Membership in available_providers is advisory: the registry decides
	// what exists, so this warns and still succeeds.
	err := m.Setup(context.Background(), "mock_decision", nil, decision.DecisionConfig{
		AvailableProviders: []string{"llm", "rule_engine"},
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if got := m.CurrentProvider(); got != "mock_decision" {
		t.Errorf("CurrentProvider = %q, want mock_decision", got)
	}
}
