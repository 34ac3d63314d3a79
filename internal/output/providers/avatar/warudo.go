package avatar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// NameWarudo is this provider's registration name.
const NameWarudo = "warudo"

// warudoExpression names a coordinated blend of Warudo facial-blueprint
// actions. The eye/eyebrow/mouth action names and weights are tuned to a
// specific rig; treat them as configuration frozen into code.
type warudoExpression struct {
	eyebrow       string
	eyebrowWeight float64
	mouth         string
	mouthWeight   float64
}

var warudoExpressions = map[types.Emotion]warudoExpression{
	types.EmotionHappy:   {eyebrow: "eyebrow_happy_weak", eyebrowWeight: 0.8, mouth: "mouth_happy_strong", mouthWeight: 0.3},
	types.EmotionExcited: {eyebrow: "eyebrow_happy_strong", eyebrowWeight: 1, mouth: "mouth_happy_strong", mouthWeight: 0.57},
	types.EmotionSad:     {eyebrow: "eyebrow_sad_weak", eyebrowWeight: 1, mouth: "mouth_sad_weak", mouthWeight: 1},
	types.EmotionAngry:   {eyebrow: "eyebrow_angry_strong", eyebrowWeight: 1, mouth: "mouth_angry_weak", mouthWeight: 0.8},
	types.EmotionNeutral: {},
}

// WarudoConfig controls the websocket endpoint this provider dials.
type WarudoConfig struct {
	Host string
	Port int
}

func parseWarudoConfig(cfg map[string]any) WarudoConfig {
	c := WarudoConfig{Host: "localhost", Port: 19190}
	if v, ok := cfg["warudo_host"].(string); ok && v != "" {
		c.Host = v
	}
	if v, ok := cfg["warudo_port"].(int64); ok && v > 0 {
		c.Port = int(v)
	}
	return c
}

// WarudoProvider renders decision.intent Emotion as a Warudo blueprint
// action blend over its websocket plugin API.
type WarudoProvider struct {
	logger *slog.Logger
	cfg    WarudoConfig
	ws     *wsClient
}

// NewWarudo constructs a Warudo avatar Provider.
func NewWarudo(cfg map[string]any, _ provider.Context) (provider.OutputProvider, error) {
	c := parseWarudoConfig(cfg)
	url := fmt.Sprintf("ws://%s:%d", c.Host, c.Port)
	return &WarudoProvider{logger: slog.Default().With("provider", NameWarudo), cfg: c, ws: newWSClient(url)}, nil
}

// Start dials the Warudo plugin websocket endpoint.
func (p *WarudoProvider) Start(ctx context.Context, _ *eventbus.Bus) error {
	return p.ws.connect(ctx)
}

// warudoAction triggers a single named blueprint action at the given
// weight, matching Warudo's "trigger blueprint action" websocket message.
type warudoAction struct {
	Type   string  `json:"type"`
	Action string  `json:"action"`
	Weight float64 `json:"weight"`
}

// Execute adapts intent.Emotion into eyebrow and mouth blueprint action
// triggers, one combination per Emotion.
func (p *WarudoProvider) Execute(ctx context.Context, intent types.Intent) error {
	if !p.ws.connected() {
		return fmt.Errorf("warudo: not connected")
	}

	expr, ok := warudoExpressions[intent.Emotion]
	if !ok || expr.eyebrow == "" && expr.mouth == "" {
		return nil
	}

	if expr.eyebrow != "" {
		if err := p.ws.send(ctx, warudoAction{Type: "trigger_action", Action: expr.eyebrow, Weight: expr.eyebrowWeight}); err != nil {
			return fmt.Errorf("warudo: trigger eyebrow action: %w", err)
		}
	}
	if expr.mouth != "" {
		if err := p.ws.send(ctx, warudoAction{Type: "trigger_action", Action: expr.mouth, Weight: expr.mouthWeight}); err != nil {
			return fmt.Errorf("warudo: trigger mouth action: %w", err)
		}
	}
	return nil
}

// Stop closes the websocket connection.
func (p *WarudoProvider) Stop() error { return p.ws.close() }

// Cleanup is a no-op; Stop already released the connection.
func (p *WarudoProvider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *WarudoProvider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: NameWarudo, Source: "internal/output/providers/avatar"}
}
