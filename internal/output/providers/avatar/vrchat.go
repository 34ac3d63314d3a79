package avatar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// NameVRChat is this provider's registration name.
const NameVRChat = "vrchat"

// vrchatExpressions maps an Emotion to the VRChat avatar parameters it
// drives over OSC.
var vrchatExpressions = map[types.Emotion]map[string]float64{
	types.EmotionHappy:     {"MouthSmile": 1.0},
	types.EmotionSad:       {"MouthSmile": -0.3, "EyeOpen": 0.7},
	types.EmotionAngry:     {"EyeOpen": 0.6, "MouthSmile": -0.5},
	types.EmotionSurprised: {"EyeOpen": 1.0, "MouthOpen": 0.5},
	types.EmotionConfused:  {"EyeOpen": 0.7, "MouthOpen": 0.2},
	types.EmotionScared:    {"EyeOpen": 0.5, "MouthOpen": 0.3},
	types.EmotionLove:      {"MouthSmile": 0.8, "EyeOpen": 0.9},
	types.EmotionShy:       {"MouthSmile": 0.3, "EyeOpen": 0.8},
	types.EmotionExcited:   {"MouthSmile": 1.0, "EyeOpen": 1.0},
	types.EmotionNeutral:   {},
}

// vrchatGestures maps an ActionType to the VRChat OSC VRCEmote integer
// value.
var vrchatGestures = map[types.ActionType]int{
	types.ActionWave:  1,
	types.ActionNod:   3,
	types.ActionShake: 8,
	types.ActionClap:  2,
	types.ActionBlink: 0,
}

// VRChatConfig controls the OSC-over-websocket bridge endpoint this
// provider dials.
type VRChatConfig struct {
	Host string
	Port int
}

func parseVRChatConfig(cfg map[string]any) VRChatConfig {
	c := VRChatConfig{Host: "127.0.0.1", Port: 9000}
	if v, ok := cfg["vrc_host"].(string); ok && v != "" {
		c.Host = v
	}
	if v, ok := cfg["vrc_out_port"].(int64); ok && v > 0 {
		c.Port = int(v)
	}
	return c
}

// VRChatProvider renders decision.intent Emotion/Actions as VRChat avatar
// OSC parameters and VRCEmote triggers, sent over a websocket bridge since
// this repo's avatar providers share wsClient rather than a raw UDP OSC
// client.
type VRChatProvider struct {
	logger *slog.Logger
	cfg    VRChatConfig
	ws     *wsClient
}

// NewVRChat constructs a VRChat avatar Provider.
func NewVRChat(cfg map[string]any, _ provider.Context) (provider.OutputProvider, error) {
	c := parseVRChatConfig(cfg)
	url := fmt.Sprintf("ws://%s:%d", c.Host, c.Port)
	return &VRChatProvider{logger: slog.Default().With("provider", NameVRChat), cfg: c, ws: newWSClient(url)}, nil
}

// Start dials the VRChat OSC bridge endpoint.
func (p *VRChatProvider) Start(ctx context.Context, _ *eventbus.Bus) error {
	return p.ws.connect(ctx)
}

// vrchatMessage is the bridge wire shape: an OSC address plus its argument
// list, matching the one-address-per-parameter shape python-osc sends.
type vrchatMessage struct {
	Address string `json:"address"`
	Args    []any  `json:"args"`
}

// Execute adapts intent.Emotion into one avatar-parameter OSC message per
// expression and intent.Actions entries with a known gesture mapping into a
// VRCEmote trigger.
func (p *VRChatProvider) Execute(ctx context.Context, intent types.Intent) error {
	if !p.ws.connected() {
		return fmt.Errorf("vrchat: not connected")
	}

	for name, value := range vrchatExpressions[intent.Emotion] {
		if err := p.ws.send(ctx, vrchatMessage{
			Address: "/avatar/parameters/" + name,
			Args:    []any{value},
		}); err != nil {
			return fmt.Errorf("vrchat: send expression %s: %w", name, err)
		}
	}

	for _, action := range intent.Actions {
		gesture, ok := vrchatGestures[action.Type]
		if !ok {
			continue
		}
		if err := p.ws.send(ctx, vrchatMessage{
			Address: "/avatar/parameters/VRCEmote",
			Args:    []any{gesture},
		}); err != nil {
			return fmt.Errorf("vrchat: send gesture %d: %w", gesture, err)
		}
	}
	return nil
}

// Stop closes the websocket connection.
func (p *VRChatProvider) Stop() error { return p.ws.close() }

// Cleanup is a no-op; Stop already released the connection.
func (p *VRChatProvider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *VRChatProvider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: NameVRChat, Source: "internal/output/providers/avatar"}
}
