package llm

import (
	"fmt"
	"log/slog"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/Mai-with-u/amaidesu/internal/config"
	"github.com/Mai-with-u/amaidesu/internal/resilience"
	providerllm "github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	"github.com/Mai-with-u/amaidesu/pkg/provider/llm/anyllm"
)

// ClientConfig describes one named entry under the [llm.clients.<name>]
// config table.
type ClientConfig struct {
	Backend   string // "openai", "anthropic", "gemini", "ollama", ... (see pkg/provider/llm/anyllm)
	Model     string
	APIKeyEnv string // environment variable name holding the API key; empty uses the backend's default env var
	BaseURL   string

	// Fallbacks names other configured clients whose backends are tried,
	// in order, when this client's backend fails or its circuit breaker
	// is open.
	Fallbacks []string
}

// BuildFromConfig constructs a Manager and registers one anyllm-backed
// client per [llm.clients.<name>] table found in svc, so a deployment
// declares however many named backends it needs instead of a single
// hard-coded client.
func BuildFromConfig(svc *config.Service, logger *slog.Logger) (*Manager, error) {
	m := NewManager(logger)

	configs := make(map[string]ClientConfig)
	backends := make(map[string]providerllm.Provider)
	for name, raw := range svc.GetSection("llm.clients") {
		table, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		cc := ClientConfig{Backend: "openai"}
		if v, ok := table["backend"].(string); ok {
			cc.Backend = v
		}
		if v, ok := table["model"].(string); ok {
			cc.Model = v
		}
		if v, ok := table["api_key_env"].(string); ok {
			cc.APIKeyEnv = v
		}
		if v, ok := table["base_url"].(string); ok {
			cc.BaseURL = v
		}
		if v, ok := table["fallbacks"].([]any); ok {
			for _, entry := range v {
				if fb, ok := entry.(string); ok && fb != "" {
					cc.Fallbacks = append(cc.Fallbacks, fb)
				}
			}
		}

		backend, err := buildBackend(cc)
		if err != nil {
			return nil, fmt.Errorf("llm: client %q: %w", name, err)
		}
		configs[name] = cc
		backends[name] = backend
	}

	// Second pass so a fallback chain can reference clients declared in
	// any order. A chain entry pointing at an unknown client is a config
	// error, not a silent skip.
	for name, cc := range configs {
		if len(cc.Fallbacks) == 0 {
			m.Register(name, backends[name])
			continue
		}
		group := resilience.NewLLMFallback(backends[name], name, resilience.FallbackConfig{})
		for _, fb := range cc.Fallbacks {
			backend, ok := backends[fb]
			if !ok {
				return nil, fmt.Errorf("llm: client %q: unknown fallback client %q", name, fb)
			}
			group.AddFallback(fb, backend)
		}
		m.Register(name, group)
	}
	return m, nil
}

// buildBackend constructs one provider for a client entry, resolved
// through any-llm's multi-backend registry.
func buildBackend(cc ClientConfig) (providerllm.Provider, error) {
	var opts []anyllmlib.Option
	if cc.APIKeyEnv != "" {
		if key := os.Getenv(cc.APIKeyEnv); key != "" {
			opts = append(opts, anyllmlib.WithAPIKey(key))
		}
	}
	if cc.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cc.BaseURL))
	}
	return anyllm.New(cc.Backend, cc.Model, opts...)
}
