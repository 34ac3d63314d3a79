// Package obscontrol implements the obs_control Extension: it owns a
// subtitle OutputProvider instance directly (rather than through the
// registry) and additionally watches decision.intent for scene-control
// directives, translating them into obs.switch_scene /
// obs.set_source_visibility events.
//
// The typewriter-effect text push lives in
// internal/output/providers/subtitle; this extension only owns that
// provider's lifecycle and the intent-to-OBS-event translation.
package obscontrol

import (
	"context"
	"fmt"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/extension"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/subtitle"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this extension's registration name.
const Name = "obs_control"

// sceneParamKey is the IntentAction.Params key carrying a scene name for an
// ActionCustom action this extension should forward as obs.switch_scene.
const sceneParamKey = "obs_scene"

// visibilityParamKey is the IntentAction.Params key carrying a
// source-name -> visible map this extension forwards as
// obs.set_source_visibility events.
const visibilityParamKey = "obs_source_visibility"

// Extension owns the subtitle OutputProvider and a decision.intent listener
// that forwards scene/visibility directives to OBS-facing events.
type Extension struct {
	subtitle     provider.OutputProvider
	bus          *eventbus.Bus
	subscription string
}

// New constructs an Extension. cfg is this extension's
// `[extensions.obs_control]` config table, reused as the subtitle
// provider's own config so both concerns stay in one table.
func New(cfg map[string]any) (extension.Extension, error) {
	return &Extension{}, nil
}

// Info describes this extension.
func (e *Extension) Info() types.ExtensionInfo {
	return types.ExtensionInfo{
		Name:        Name,
		Version:     "1.0.0",
		Description: "Pushes response text and scene/visibility directives to OBS Studio.",
		Author:      "amaidesu",
		Providers:   []string{subtitle.Name},
		Enabled:     true,
	}
}

// Dependencies reports none; this extension is self-contained.
func (e *Extension) Dependencies() []string { return nil }

// Setup constructs and starts the subtitle provider, then subscribes to
// decision.intent to forward any scene/visibility directives it carries.
func (e *Extension) Setup(ctx context.Context, bus *eventbus.Bus, cfg map[string]any) ([]string, error) {
	p, err := subtitle.New(cfg, provider.Context{EventBus: bus})
	if err != nil {
		return nil, fmt.Errorf("obs_control: construct subtitle provider: %w", err)
	}
	if err := p.Start(ctx, bus); err != nil {
		return nil, fmt.Errorf("obs_control: start subtitle provider: %w", err)
	}
	e.subtitle = p
	e.bus = bus
	e.subscription = eventbus.Subscribe(bus, eventregistry.DecisionIntent, e.onIntent, 0)
	return []string{subtitle.Name}, nil
}

func (e *Extension) onIntent(ctx context.Context, payload eventregistry.DecisionIntentPayload, source string) error {
	for _, action := range payload.Intent.Actions {
		if action.Type != types.ActionCustom {
			continue
		}
		if scene, ok := action.Params[sceneParamKey].(string); ok && scene != "" {
			if err := e.bus.Emit(ctx, eventregistry.OBSSwitchScene, eventregistry.OBSSwitchScenePayload{SceneName: scene}, Name); err != nil {
				return err
			}
		}
		if vis, ok := action.Params[visibilityParamKey].(map[string]bool); ok {
			for sourceName, visible := range vis {
				if err := e.bus.Emit(ctx, eventregistry.OBSSetSourceVisibility, eventregistry.OBSSetSourceVisibilityPayload{
					SourceName: sourceName, Visible: visible,
				}, Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Cleanup stops the subtitle provider and unsubscribes from decision.intent.
func (e *Extension) Cleanup(ctx context.Context) error {
	if e.bus != nil && e.subscription != "" {
		e.bus.Off(eventregistry.DecisionIntent, e.subscription)
	}
	if e.subtitle == nil {
		return nil
	}
	if err := e.subtitle.Stop(); err != nil {
		return err
	}
	return e.subtitle.Cleanup()
}
