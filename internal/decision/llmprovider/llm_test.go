package llmprovider

import (
	"context"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/llm"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

type stubChat struct {
	response string
	err      error
}

func (s stubChat) HasClient(string) bool { return true }
func (s stubChat) Chat(context.Context, string, string) (string, error) {
	return s.response, s.err
}

func (s stubChat) ChatStructured(context.Context, string, llm.ChatRequest) (llm.ChatResponse, error) {
	return llm.ChatResponse{Content: s.response}, s.err
}

func newTestProvider(t *testing.T, chat chatService) (*Provider, *eventbus.Bus) {
	t.Helper()
	p, err := New(nil, provider.Context{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prov := p.(*Provider)
	prov.llm = chat
	bus := eventbus.New(nil, nil)
	prov.Start(context.Background(), bus, nil)
	return prov, bus
}

func decideAndAwait(t *testing.T, prov *Provider, bus *eventbus.Bus, msg types.NormalizedMessage) eventregistry.DecisionIntentPayload {
	t.Helper()
	received := make(chan eventregistry.DecisionIntentPayload, 1)
	eventbus.Subscribe(bus, eventregistry.DecisionIntent, func(_ context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
		received <- payload
		return nil
	}, 0)

	prov.Decide(context.Background(), msg)

	select {
	case payload := <-received:
		return payload
	case <-time.After(time.Second):
		t.Fatal("decision.intent was never published")
		return eventregistry.DecisionIntentPayload{}
	}
}

func TestProvider_MalformedJSONWithTrailingCommaFallsBackToClean(t *testing.T) {
	raw := "```json\n{\"emotion\":\"happy\", \"actions\":[], \"response_text\":\"yo\",}\n```"
	prov, bus := newTestProvider(t, stubChat{response: raw})

	payload := decideAndAwait(t, prov, bus, types.NormalizedMessage{Text: "hi", Source: "console_input"})

	if payload.Intent.Emotion != types.EmotionHappy {
		t.Errorf("emotion = %q, want happy", payload.Intent.Emotion)
	}
	if payload.Intent.ResponseText != "yo" {
		t.Errorf("response_text = %q, want yo", payload.Intent.ResponseText)
	}
	if len(payload.Intent.Actions) != 1 || payload.Intent.Actions[0].Type != types.ActionBlink {
		t.Errorf("expected default blink action when actions is empty, got %v", payload.Intent.Actions)
	}
}

func TestCleanLLMJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fenced with trailing comma", "```json\n{\"a\":1,}\n```", `{"a":1}`},
		{"plain fence no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"trailing comma in array", `{"a":[1,2,],"b":3}`, `{"a":[1,2],"b":3}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := cleanLLMJSON(c.in)
			if got != c.want {
				t.Errorf("cleanLLMJSON(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestProvider_ChatErrorFallsBackToEcho(t *testing.T) {
	prov, bus := newTestProvider(t, stubChat{err: context.DeadlineExceeded})
	prov.cfg.FallbackMode = FallbackEcho

	payload := decideAndAwait(t, prov, bus, types.NormalizedMessage{Text: "ping"})

	if payload.Intent.ResponseText != "you said: ping" {
		t.Errorf("got %q", payload.Intent.ResponseText)
	}
}

func TestProvider_NoClientConfiguredFallsBackToSimple(t *testing.T) {
	p, err := New(nil, provider.Context{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prov := p.(*Provider)
	bus := eventbus.New(nil, nil)
	prov.Start(context.Background(), bus, nil)

	payload := decideAndAwait(t, prov, bus, types.NormalizedMessage{Text: "no llm here"})
	if payload.Intent.ResponseText != "no llm here" {
		t.Errorf("got %q, want the original text echoed back", payload.Intent.ResponseText)
	}
}
