// Package emotionjudge implements the emotion_judge Extension: it watches
// decision.intent, runs a lightweight keyword-based sentiment heuristic
// over the response text, and records a metric for any case where that
// heuristic disagrees with the Intent's declared Emotion.
//
// The judgment is a local heuristic rather than a second LLM round trip,
// and the signal feeds observability (internal/observe) instead of a
// hotkey, since avatar expression is already driven directly by
// Intent.Emotion in internal/output/providers/avatar.
package emotionjudge

import (
	"context"
	"strings"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/extension"
	"github.com/Mai-with-u/amaidesu/internal/observe"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this extension's registration name.
const Name = "emotion_judge"

// keywordEmotions maps a small set of English sentiment keywords to the
// Emotion a heuristic judge would expect response text containing them to
// declare. Not exhaustive; entries absent here are treated as agreeing
// with whatever the provider declared.
var keywordEmotions = map[string]types.Emotion{
	"sorry":     types.EmotionSad,
	"sad":       types.EmotionSad,
	"cry":       types.EmotionSad,
	"angry":     types.EmotionAngry,
	"furious":   types.EmotionAngry,
	"annoyed":   types.EmotionAngry,
	"wow":       types.EmotionSurprised,
	"surprised": types.EmotionSurprised,
	"what?!":    types.EmotionSurprised,
	"confused":  types.EmotionConfused,
	"huh?":      types.EmotionConfused,
	"scared":    types.EmotionScared,
	"afraid":    types.EmotionScared,
	"love":      types.EmotionLove,
	"excited":   types.EmotionExcited,
	"yay":       types.EmotionExcited,
	"haha":      types.EmotionHappy,
	"happy":     types.EmotionHappy,
	"glad":      types.EmotionHappy,
}

// judge returns the Emotion implied by a keyword found in text, or
// ("", false) if no keyword matches. When several keywords match, which one
// decides follows map iteration order and is not defined.
func judge(text string) (types.Emotion, bool) {
	lower := strings.ToLower(text)
	for kw, emotion := range keywordEmotions {
		if strings.Contains(lower, kw) {
			return emotion, true
		}
	}
	return "", false
}

// Extension subscribes to decision.intent and compares each Intent's
// declared Emotion against the heuristic's judgment of its response text.
type Extension struct {
	bus          *eventbus.Bus
	subscription string
	metrics      *observe.Metrics
}

// New constructs an Extension. cfg is this extension's
// `[extensions.emotion_judge]` config table; it is currently unused since
// the heuristic has no tunable parameters.
func New(_ map[string]any) (extension.Extension, error) {
	return &Extension{metrics: observe.DefaultMetrics()}, nil
}

// Info describes this extension.
func (e *Extension) Info() types.ExtensionInfo {
	return types.ExtensionInfo{
		Name:        Name,
		Version:     "1.0.0",
		Description: "Flags decision.intent Emotion values that disagree with a keyword sentiment heuristic.",
		Author:      "amaidesu",
		Enabled:     true,
	}
}

// Dependencies reports none; this extension only reads published intents.
func (e *Extension) Dependencies() []string { return nil }

// Setup subscribes to decision.intent. It owns no providers.
func (e *Extension) Setup(_ context.Context, bus *eventbus.Bus, _ map[string]any) ([]string, error) {
	e.bus = bus
	e.subscription = eventbus.Subscribe(bus, eventregistry.DecisionIntent, e.onIntent, 0)
	return nil, nil
}

func (e *Extension) onIntent(ctx context.Context, payload eventregistry.DecisionIntentPayload, _ string) error {
	heuristic, matched := judge(payload.Intent.ResponseText)
	if !matched || heuristic == payload.Intent.Emotion {
		return nil
	}
	e.metrics.RecordEmotionMismatch(ctx, string(payload.Intent.Emotion), string(heuristic))
	return nil
}

// Cleanup unsubscribes from decision.intent.
func (e *Extension) Cleanup(_ context.Context) error {
	if e.bus != nil && e.subscription != "" {
		e.bus.Off(eventregistry.DecisionIntent, e.subscription)
	}
	return nil
}
