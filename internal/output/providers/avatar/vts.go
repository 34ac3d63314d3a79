package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/audiostream"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/audio"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// NameVTS is this provider's registration name.
const NameVTS = "vts"

// vtsParams maps an Emotion to the VTube Studio model parameters it
// drives. Parameter names and weights are tuned to a specific model rig,
// not derived; treat them as configuration frozen into code.
var vtsParams = map[types.Emotion]map[string]float64{
	types.EmotionHappy:     {"MouthSmile": 1.0},
	types.EmotionSurprised: {"EyeOpenLeft": 1.0, "EyeOpenRight": 1.0, "MouthOpen": 0.5},
	types.EmotionSad:       {"MouthSmile": -0.3, "EyeOpenLeft": 0.7, "EyeOpenRight": 0.7},
	types.EmotionAngry:     {"EyeOpenLeft": 0.6, "EyeOpenRight": 0.6, "MouthSmile": -0.5},
	types.EmotionShy:       {"MouthSmile": 0.3, "EyeOpenLeft": 0.8, "EyeOpenRight": 0.8},
	types.EmotionLove:      {"MouthSmile": 0.8, "EyeOpenLeft": 0.9, "EyeOpenRight": 0.9},
	types.EmotionExcited:   {"MouthSmile": 1.0, "EyeOpenLeft": 1.0, "EyeOpenRight": 1.0},
	types.EmotionConfused:  {"EyeOpenLeft": 0.7, "EyeOpenRight": 0.7, "MouthOpen": 0.2},
	types.EmotionScared:    {"EyeOpenLeft": 0.5, "EyeOpenRight": 0.5, "MouthOpen": 0.3},
	types.EmotionNeutral:   {},
}

// vtsHotkeys maps an ActionType to the VTS hotkey name it triggers.
var vtsHotkeys = map[types.ActionType]string{
	types.ActionBlink:  "Blink",
	types.ActionNod:    "Nod",
	types.ActionShake:  "Shake",
	types.ActionWave:   "Wave",
	types.ActionClap:   "Clap",
	types.ActionMotion: "Motion",
}

// VTSConfig controls the websocket endpoint this provider dials and its
// audio-driven lip-sync behaviour.
type VTSConfig struct {
	Host string
	Port int

	// LipSync drives MouthOpen from the Audio Stream Channel's chunk levels
	// while the agent speaks.
	LipSync bool

	// LipSyncGain scales the measured RMS level before clamping to [0, 1].
	LipSyncGain float64
}

func parseVTSConfig(cfg map[string]any) VTSConfig {
	c := VTSConfig{Host: "localhost", Port: 8001, LipSync: true, LipSyncGain: 2.0}
	if v, ok := cfg["vts_host"].(string); ok && v != "" {
		c.Host = v
	}
	if v, ok := cfg["vts_port"].(int64); ok && v > 0 {
		c.Port = int(v)
	}
	if v, ok := cfg["lip_sync"].(bool); ok {
		c.LipSync = v
	}
	if v, ok := cfg["lip_sync_gain"].(float64); ok && v > 0 {
		c.LipSyncGain = v
	}
	return c
}

// VTSProvider renders decision.intent Emotion/Actions against a running
// VTube Studio instance over its local websocket API, and mirrors the
// spoken audio's level onto the model's MouthOpen parameter.
type VTSProvider struct {
	logger *slog.Logger
	cfg    VTSConfig
	ws     *wsClient
	stream provider.AudioStream

	mu           sync.Mutex
	subscription string
}

// NewVTS constructs a VTS avatar Provider.
func NewVTS(cfg map[string]any, ctx provider.Context) (provider.OutputProvider, error) {
	c := parseVTSConfig(cfg)
	url := fmt.Sprintf("ws://%s:%d", c.Host, c.Port)
	return &VTSProvider{
		logger: slog.Default().With("provider", NameVTS),
		cfg:    c,
		ws:     newWSClient(url),
		stream: ctx.AudioStream,
	}, nil
}

// Start dials the VTS websocket endpoint and, when lip-sync is enabled,
// subscribes to the Audio Stream Channel. The lip-sync queue is short and
// drops oldest: mouth movement must track the newest audio, not replay a
// backlog.
func (p *VTSProvider) Start(ctx context.Context, _ *eventbus.Bus) error {
	if err := p.ws.connect(ctx); err != nil {
		return err
	}
	if !p.cfg.LipSync || p.stream == nil {
		return nil
	}
	id, err := p.stream.Subscribe(NameVTS+"_lipsync", nil, p.onLipSyncChunk, p.onLipSyncEnd, audiostream.SubscriptionConfig{
		QueueSize:            8,
		BackpressureStrategy: audiostream.DropOldest,
	})
	if err != nil {
		return fmt.Errorf("vts: subscribe lip-sync: %w", err)
	}
	p.mu.Lock()
	p.subscription = id
	p.mu.Unlock()
	return nil
}

func (p *VTSProvider) onLipSyncChunk(chunk types.AudioChunk) {
	level := audio.RMS(chunk.Data) * p.cfg.LipSyncGain
	if level > 1 {
		level = 1
	}
	p.injectMouthOpen(level)
}

func (p *VTSProvider) onLipSyncEnd(types.AudioMetadata) {
	p.injectMouthOpen(0)
}

func (p *VTSProvider) injectMouthOpen(level float64) {
	if !p.ws.connected() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.request(ctx, "lipsync", "InjectParameterDataRequest", map[string]any{
		"faceFound": false,
		"mode":      "set",
		"parameterValues": []map[string]any{
			{"id": "MouthOpen", "value": level},
		},
	}); err != nil {
		p.logger.Debug("lip-sync inject failed", "error", err)
	}
}

// vtsRequest mirrors the VTube Studio API's envelope shape (apiName,
// apiVersion, requestID, messageType, data).
type vtsRequest struct {
	APIName     string `json:"apiName"`
	APIVersion  string `json:"apiVersion"`
	RequestID   string `json:"requestID"`
	MessageType string `json:"messageType"`
	Data        any    `json:"data"`
}

func (p *VTSProvider) request(ctx context.Context, requestID, messageType string, data any) error {
	return p.ws.send(ctx, vtsRequest{
		APIName: "VTubeStudioPublicAPI", APIVersion: "1.0",
		RequestID: requestID, MessageType: messageType, Data: data,
	})
}

// Execute renders an Intent in two passes: the Emotion becomes an
// InjectParameterDataRequest, and every action with a known hotkey
// mapping becomes its own HotkeyTriggerRequest.
func (p *VTSProvider) Execute(ctx context.Context, intent types.Intent) error {
	if !p.ws.connected() {
		return fmt.Errorf("vts: not connected")
	}

	if params, ok := vtsParams[intent.Emotion]; ok && len(params) > 0 {
		values := make([]map[string]any, 0, len(params))
		for name, value := range params {
			values = append(values, map[string]any{"id": name, "value": value})
		}
		if err := p.request(ctx, "emotion-"+string(intent.Emotion), "InjectParameterDataRequest", map[string]any{
			"faceFound":       false,
			"mode":            "set",
			"parameterValues": values,
		}); err != nil {
			return fmt.Errorf("vts: inject parameters: %w", err)
		}
	}

	for _, action := range intent.Actions {
		hotkey, ok := vtsHotkeys[action.Type]
		if !ok {
			continue
		}
		if err := p.request(ctx, "hotkey-"+hotkey+"-"+time.Now().Format("150405.000"), "HotkeyTriggerRequest", map[string]any{
			"hotkeyID": hotkey,
		}); err != nil {
			return fmt.Errorf("vts: trigger hotkey %s: %w", hotkey, err)
		}
	}
	return nil
}

// Stop drops the lip-sync subscription and closes the websocket connection.
func (p *VTSProvider) Stop() error {
	p.mu.Lock()
	sub := p.subscription
	p.subscription = ""
	p.mu.Unlock()
	if sub != "" && p.stream != nil {
		p.stream.Unsubscribe(sub)
	}
	return p.ws.close()
}

// Cleanup is a no-op; Stop already released the connection.
func (p *VTSProvider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *VTSProvider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: NameVTS, Source: "internal/output/providers/avatar"}
}
