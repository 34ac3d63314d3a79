// Package tts implements the TTS OutputProvider: it synthesizes an Intent's
// response text through a pkg/provider/tts.Provider backend and fans the
// resulting PCM out over the Audio Stream Channel as AudioChunks bracketed
// by notify-start/notify-end, so avatar lip-sync and remote-stream
// subscribers receive the same utterance in real time.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/resilience"
	"github.com/Mai-with-u/amaidesu/pkg/provider/tts"
	"github.com/Mai-with-u/amaidesu/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/Mai-with-u/amaidesu/pkg/provider/tts/mock"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this provider's registration name.
const Name = "tts"

// chunkBytes bounds one AudioChunk's payload: 1024 int16 samples of raw
// PCM, small enough that lip-sync subscribers track the audio closely.
const chunkBytes = 2048

// Config controls which backend this provider synthesizes through and the
// voice/sample-rate metadata attached to published chunks.
type Config struct {
	Backend string // "elevenlabs" or "mock"

	// FallbackBackend, when non-empty, is tried whenever Backend fails or
	// its circuit breaker is open, so a vendor outage degrades instead of
	// muting the agent.
	FallbackBackend string

	APIKey     string
	VoiceID    string
	SampleRate int
	Channels   int
}

func parseConfig(cfg map[string]any) Config {
	c := Config{Backend: "mock", SampleRate: 16000, Channels: 1}
	if v, ok := cfg["backend"].(string); ok && v != "" {
		c.Backend = v
	}
	if v, ok := cfg["fallback_backend"].(string); ok {
		c.FallbackBackend = v
	}
	if v, ok := cfg["api_key"].(string); ok {
		c.APIKey = v
	}
	if v, ok := cfg["voice_id"].(string); ok {
		c.VoiceID = v
	}
	if v, ok := cfg["sample_rate"].(int64); ok && v > 0 {
		c.SampleRate = int(v)
	}
	if v, ok := cfg["channels"].(int64); ok && v > 0 {
		c.Channels = int(v)
	}
	return c
}

func buildOne(name string, c Config) (tts.Provider, error) {
	switch name {
	case "elevenlabs":
		return elevenlabs.New(c.APIKey)
	case "mock", "":
		return &ttsmock.Provider{}, nil
	default:
		return nil, fmt.Errorf("tts: unknown backend %q", name)
	}
}

func buildBackend(c Config) (tts.Provider, error) {
	primary, err := buildOne(c.Backend, c)
	if err != nil {
		return nil, err
	}
	if c.FallbackBackend == "" || c.FallbackBackend == c.Backend {
		return primary, nil
	}
	fb, err := buildOne(c.FallbackBackend, c)
	if err != nil {
		return nil, fmt.Errorf("tts: fallback backend: %w", err)
	}
	group := resilience.NewTTSFallback(primary, c.Backend, resilience.FallbackConfig{})
	group.AddFallback(c.FallbackBackend, fb)
	return group, nil
}

// Provider is the OutputProvider implementation.
type Provider struct {
	logger  *slog.Logger
	cfg     Config
	backend tts.Provider

	mu       sync.Mutex
	bus      *eventbus.Bus
	audio    provider.AudioStream
	sequence uint64
}

// New constructs a tts Provider from its merged config and injected
// dependencies (the Audio Stream Channel, via ctx.AudioStream).
func New(cfg map[string]any, ctx provider.Context) (provider.OutputProvider, error) {
	c := parseConfig(cfg)
	backend, err := buildBackend(c)
	if err != nil {
		return nil, err
	}
	return &Provider{
		logger:  slog.Default().With("provider", Name),
		cfg:     c,
		backend: backend,
		audio:   ctx.AudioStream,
	}, nil
}

// Start records the bus; the Audio Stream Channel dependency was already
// injected at construction via ProviderContext.
func (p *Provider) Start(_ context.Context, bus *eventbus.Bus) error {
	p.mu.Lock()
	p.bus = bus
	p.mu.Unlock()
	return nil
}

// Execute synthesizes intent.ResponseText and publishes the resulting audio
// to every Audio Stream Channel subscriber, bracketed by notify-start/end.
func (p *Provider) Execute(ctx context.Context, intent types.Intent) error {
	text := intent.ResponseText
	if text == "" {
		return nil
	}

	meta := types.AudioMetadata{Text: text, SampleRate: p.cfg.SampleRate, Channels: p.cfg.Channels, Timestamp: time.Now()}
	if p.audio != nil {
		p.audio.NotifyStart(meta)
		defer p.audio.NotifyEnd(meta)
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	voice := types.VoiceProfile{ID: p.cfg.VoiceID}
	audioCh, err := p.backend.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return fmt.Errorf("tts: synthesize: %w", err)
	}

	var pending []byte
	for pcm := range audioCh {
		pending = append(pending, pcm...)
		for len(pending) >= chunkBytes {
			if err := p.publish(ctx, pending[:chunkBytes]); err != nil {
				return err
			}
			pending = pending[chunkBytes:]
		}
	}
	if len(pending) > 0 {
		if err := p.publish(ctx, pending); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) publish(ctx context.Context, data []byte) error {
	if p.audio == nil {
		return nil
	}
	p.mu.Lock()
	p.sequence++
	seq := p.sequence
	p.mu.Unlock()

	result := p.audio.Publish(ctx, types.AudioChunk{
		Data: data, SampleRate: p.cfg.SampleRate, Channels: p.cfg.Channels,
		Sequence: seq, Timestamp: time.Now(),
	})
	if len(result.Errors) > 0 {
		p.logger.Warn("audio publish had subscriber errors", "errors", result.Errors)
	}
	return nil
}

// Stop is a no-op; the backend holds no long-lived connection in this
// implementation.
func (p *Provider) Stop() error { return nil }

// Cleanup is a no-op.
func (p *Provider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: Name, Source: "internal/output/providers/tts"}
}
