// Package subtitle implements a text-overlay OutputProvider: it renders an
// Intent's response text to a stream-graphics text source by publishing
// obs.send_text on the event bus, optionally with a typewriter-style
// character-by-character reveal.
package subtitle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this provider's registration name.
const Name = "subtitle"

// Config controls the subtitle provider's rendering.
type Config struct {
	// SourceName is the stream-graphics text source to target.
	SourceName string

	// Typewriter reveals the text one rune at a time, CharDelay apart,
	// instead of publishing the full text in a single obs.send_text emit.
	Typewriter bool
	CharDelay  time.Duration

	// ClearOnEmpty sends an empty string when the Intent's response text
	// is empty, clearing the overlay instead of leaving stale text.
	ClearOnEmpty bool
}

func parseConfig(cfg map[string]any) Config {
	c := Config{SourceName: "subtitle", CharDelay: 40 * time.Millisecond, ClearOnEmpty: true}
	if v, ok := cfg["source_name"].(string); ok && v != "" {
		c.SourceName = v
	}
	if v, ok := cfg["typewriter"].(bool); ok {
		c.Typewriter = v
	}
	if v, ok := cfg["char_delay_ms"].(int64); ok && v > 0 {
		c.CharDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := cfg["clear_on_empty"].(bool); ok {
		c.ClearOnEmpty = v
	}
	return c
}

// Provider is the OutputProvider implementation.
type Provider struct {
	logger *slog.Logger
	cfg    Config

	mu  sync.Mutex
	bus *eventbus.Bus
}

// New constructs a subtitle Provider from its merged config.
func New(cfg map[string]any, _ provider.Context) (provider.OutputProvider, error) {
	return &Provider{logger: slog.Default().With("provider", Name), cfg: parseConfig(cfg)}, nil
}

// Start records the bus for later emits; no external resource to open.
func (p *Provider) Start(_ context.Context, bus *eventbus.Bus) error {
	p.mu.Lock()
	p.bus = bus
	p.mu.Unlock()
	return nil
}

// Execute renders intent.ResponseText to the configured subtitle source.
func (p *Provider) Execute(ctx context.Context, intent types.Intent) error {
	p.mu.Lock()
	bus := p.bus
	p.mu.Unlock()
	if bus == nil {
		return fmt.Errorf("subtitle: not started")
	}

	text := intent.ResponseText
	if text == "" {
		if !p.cfg.ClearOnEmpty {
			return nil
		}
		return bus.Emit(ctx, eventregistry.OBSSendText, eventregistry.OBSSendTextPayload{
			SourceName: p.cfg.SourceName, Text: "",
		}, Name)
	}

	if !p.cfg.Typewriter {
		return bus.Emit(ctx, eventregistry.OBSSendText, eventregistry.OBSSendTextPayload{
			SourceName: p.cfg.SourceName, Text: text,
		}, Name)
	}

	runes := []rune(text)
	for i := range runes {
		if err := bus.Emit(ctx, eventregistry.OBSSendText, eventregistry.OBSSendTextPayload{
			SourceName: p.cfg.SourceName, Text: string(runes[:i+1]),
		}, Name); err != nil {
			return err
		}
		select {
		case <-time.After(p.cfg.CharDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop is a no-op; the provider holds no resources beyond the bus reference.
func (p *Provider) Stop() error { return nil }

// Cleanup is a no-op.
func (p *Provider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: Name, Source: "internal/output/providers/subtitle"}
}
