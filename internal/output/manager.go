// Package output implements the Output Provider Manager: it loads every
// enabled output provider, starts them, subscribes once to decision.intent,
// and dispatches each received Intent to every provider under a per-provider
// render timeout, reporting render.completed/render.failed for each.
// StopAll unwinds providers in reverse insertion order.
package output

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/config"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
)

// stopTimeout bounds how long StopAll waits for a provider's Stop call.
const stopTimeout = 10 * time.Second

// defaultRenderTimeout bounds one provider's Execute call when its own
// config sets no render_timeout_ms.
const defaultRenderTimeout = 10 * time.Second

// dispatchPriority is the subscription priority the manager uses for its
// own decision.intent handler; a mid-range value, matching this codebase's
// convention of reserving 0-49 for providers that must see an Intent before
// general dispatch (none currently do).
const dispatchPriority = 100

// Config controls dispatch policy for the output domain.
type Config struct {
	// ConcurrentRendering dispatches an Intent to every provider
	// concurrently when true (cmd/amaidesu sets it); when false, the zero
	// value, providers render serially in registration order.
	ConcurrentRendering bool

	// RenderTimeout bounds one provider's Execute call when its own config
	// sets no render_timeout_ms. Defaults to defaultRenderTimeout.
	RenderTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = defaultRenderTimeout
	}
	return c
}

// Manager loads and supervises the set of enabled output providers.
type Manager struct {
	logger *slog.Logger
	cfg    Config

	mu           sync.Mutex
	started      bool
	providers    []namedProvider
	bus          *eventbus.Bus
	subscription string
}

type namedProvider struct {
	name    string
	p       provider.OutputProvider
	timeout time.Duration
}

// NewManager returns a Manager using cfg for dispatch policy.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, cfg: cfg.normalized()}
}

// LoadFromConfig constructs every provider named in
// providers.output.enabled_outputs via reg, skipping (logging) any that
// fail to construct, matching input.Manager.LoadFromConfig's tolerance for
// one bad provider not blocking the rest of the domain. A provider's own
// config may set render_timeout_ms to override the manager-wide default.
func (m *Manager) LoadFromConfig(svc *config.Service, reg *registry.Registry, ctx provider.Context) ([]provider.OutputProvider, error) {
	section := svc.GetSection("providers.output")
	names, _ := section["enabled_outputs"].([]any)

	providerConfigs := svc.GetAllProviderConfigs("output")

	var out []provider.OutputProvider
	m.mu.Lock()
	for _, raw := range names {
		name, ok := raw.(string)
		if !ok || name == "" {
			continue
		}
		cfg := providerConfigs[name]
		p, err := reg.CreateOutput(name, cfg, ctx)
		if err != nil {
			m.logger.Error("skipping output provider", "name", name, "error", err)
			continue
		}
		timeout := m.cfg.RenderTimeout
		if ms, ok := cfg["render_timeout_ms"].(int64); ok && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
		m.providers = append(m.providers, namedProvider{name: name, p: p, timeout: timeout})
		out = append(out, p)
	}
	m.mu.Unlock()
	return out, nil
}

// SetupAll starts every loaded provider against bus, then subscribes the
// manager itself to decision.intent so every subsequently published Intent
// is dispatched to every provider. A provider failing to start is logged
// but does not prevent the others from starting or the manager from
// subscribing.
func (m *Manager) SetupAll(ctx context.Context, bus *eventbus.Bus) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.bus = bus
	providers := append([]namedProvider(nil), m.providers...)
	concurrent := m.cfg.ConcurrentRendering
	m.mu.Unlock()

	if !concurrent {
		for _, np := range providers {
			if err := np.p.Start(ctx, bus); err != nil {
				m.logger.Error("output provider failed to start", "name", np.name, "error", err)
			}
		}
	} else {
		var wg sync.WaitGroup
		for _, np := range providers {
			wg.Add(1)
			go func(np namedProvider) {
				defer wg.Done()
				if err := np.p.Start(ctx, bus); err != nil {
					m.logger.Error("output provider failed to start", "name", np.name, "error", err)
				}
			}(np)
		}
		wg.Wait()
	}

	id := eventbus.Subscribe(bus, eventregistry.DecisionIntent, m.onIntent, dispatchPriority)
	m.mu.Lock()
	m.subscription = id
	m.mu.Unlock()
	return nil
}

// onIntent is the manager's own decision.intent handler: it dispatches the
// received Intent to every loaded provider under that provider's render
// timeout, concurrently or serially per Config.ConcurrentRendering, and
// emits render.completed/render.failed per provider.
func (m *Manager) onIntent(ctx context.Context, payload eventregistry.DecisionIntentPayload, source string) error {
	m.mu.Lock()
	providers := append([]namedProvider(nil), m.providers...)
	concurrent := m.cfg.ConcurrentRendering
	m.mu.Unlock()

	render := func(np namedProvider) {
		renderCtx, cancel := context.WithTimeout(ctx, np.timeout)
		defer cancel()

		start := time.Now()
		err := np.p.Execute(renderCtx, payload.Intent)
		duration := time.Since(start)

		if err != nil {
			recoverable := renderCtx.Err() == nil
			m.logger.Error("output provider render failed", "name", np.name, "error", err)
			_ = m.bus.Emit(ctx, eventregistry.RenderFailed, eventregistry.RenderFailedPayload{
				Provider: np.name, OutputType: np.name, ErrorType: "execute_error",
				ErrorMessage: err.Error(), Recoverable: recoverable, Timestamp: time.Now(),
			}, np.name)
			return
		}
		_ = m.bus.Emit(ctx, eventregistry.RenderCompleted, eventregistry.RenderCompletedPayload{
			Provider: np.name, OutputType: np.name, Success: true,
			DurationMs: float64(duration.Microseconds()) / 1000, Timestamp: time.Now(),
		}, np.name)
	}

	if !concurrent {
		for _, np := range providers {
			render(np)
		}
		return nil
	}

	var wg sync.WaitGroup
	for _, np := range providers {
		wg.Add(1)
		go func(np namedProvider) {
			defer wg.Done()
			render(np)
		}(np)
	}
	wg.Wait()
	return nil
}

// StopAll calls Stop on every provider in reverse registration order so
// later providers unwind before the ones they may depend on, bounding each
// call by stopTimeout.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	providers := append([]namedProvider(nil), m.providers...)
	bus := m.bus
	subscription := m.subscription
	m.started = false
	m.mu.Unlock()

	if bus != nil && subscription != "" {
		bus.Off(eventregistry.DecisionIntent, subscription)
	}

	for i := len(providers) - 1; i >= 0; i-- {
		np := providers[i]
		done := make(chan error, 1)
		go func() { done <- np.p.Stop() }()

		select {
		case err := <-done:
			if err != nil {
				m.logger.Warn("output provider stop error", "name", np.name, "error", err)
			}
		case <-time.After(stopTimeout):
			m.logger.Warn("output provider stop timed out, abandoning", "name", np.name)
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := np.p.Cleanup(); err != nil {
			m.logger.Warn("output provider cleanup error", "name", np.name, "error", err)
		}
	}
	return nil
}

// Names returns the registration-ordered names of every loaded provider.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.providers))
	for i, np := range m.providers {
		names[i] = np.name
	}
	return names
}
