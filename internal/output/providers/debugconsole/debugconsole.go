// Package debugconsole implements a minimal OutputProvider that prints an
// Intent's contents to stdout, for local development without a TTS backend
// or avatar connection.
package debugconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this provider's registration name.
const Name = "debug_console"

// Config controls which Intent fields are printed.
type Config struct {
	PrintSourceContext bool
	PrintActions       bool
	PrintMetadata      bool
	Prefix             string
}

func parseConfig(cfg map[string]any) Config {
	c := Config{PrintSourceContext: true, PrintActions: true, Prefix: "[DEBUG]"}
	if v, ok := cfg["print_source_context"].(bool); ok {
		c.PrintSourceContext = v
	}
	if v, ok := cfg["print_actions"].(bool); ok {
		c.PrintActions = v
	}
	if v, ok := cfg["print_metadata"].(bool); ok {
		c.PrintMetadata = v
	}
	if v, ok := cfg["prefix"].(string); ok && v != "" {
		c.Prefix = v
	}
	return c
}

// Provider prints every received Intent to stdout.
type Provider struct {
	logger *slog.Logger
	cfg    Config
}

// New constructs a debug-console Provider from its merged config.
func New(cfg map[string]any, _ provider.Context) (provider.OutputProvider, error) {
	return &Provider{logger: slog.Default().With("provider", Name), cfg: parseConfig(cfg)}, nil
}

// Start is a no-op; this provider holds no external resources.
func (p *Provider) Start(_ context.Context, _ *eventbus.Bus) error { return nil }

// Execute prints intent's text, emotion, source context, and actions to
// stdout, one labelled section per Intent field.
func (p *Provider) Execute(_ context.Context, intent types.Intent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "%s Debug Console Output - Intent Received\n", p.cfg.Prefix)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))

	fmt.Fprintf(&b, "\n[Text]\n  Original: %s\n  Response: %s\n", intent.OriginalText, intent.ResponseText)
	fmt.Fprintf(&b, "\n[Emotion]\n  Type: %s\n", intent.Emotion)

	if p.cfg.PrintSourceContext {
		sc := intent.SourceContext
		fmt.Fprintf(&b, "\n[Source Context]\n  Source: %s\n  Data Type: %s\n  Importance: %.2f\n",
			sc.Source, sc.DataType, sc.Importance)
	}

	if p.cfg.PrintActions && len(intent.Actions) > 0 {
		fmt.Fprintf(&b, "\n[Actions] (%d total)\n", len(intent.Actions))
		for i, action := range intent.Actions {
			fmt.Fprintf(&b, "  %d. Type: %s\n     Priority: %d\n", i+1, action.Type, action.Priority)
			if len(action.Params) > 0 {
				fmt.Fprintf(&b, "     Params: %v\n", action.Params)
			}
		}
	}

	if p.cfg.PrintMetadata && len(intent.Metadata) > 0 {
		fmt.Fprintf(&b, "\n[Metadata]\n")
		for k, v := range intent.Metadata {
			fmt.Fprintf(&b, "  %s: %v\n", k, v)
		}
	}

	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Print(b.String())
	return nil
}

// Stop is a no-op.
func (p *Provider) Stop() error { return nil }

// Cleanup is a no-op.
func (p *Provider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: Name, Source: "internal/output/providers/debugconsole"}
}
