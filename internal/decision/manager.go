// Package decision implements the Decision Domain: the single active
// DecisionProvider's lifecycle, runtime switching, and the data.message ->
// decision.intent bridge.
package decision

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// DecisionConfig is the [providers.decision] domain section: which provider
// is active and which providers a deployment considers selectable.
type DecisionConfig struct {
	// ActiveProvider is used when Setup's providerName argument is empty.
	// Empty too falls back to defaultProvider.
	ActiveProvider string

	// AvailableProviders lists the provider names the deployment expects to
	// switch between. Setup warns (but proceeds) when the resolved name is
	// not a member, since the registry is the real authority.
	AvailableProviders []string
}

// DecisionConfigFromTable builds a DecisionConfig from the raw
// [providers.decision] config table.
func DecisionConfigFromTable(table map[string]any) DecisionConfig {
	var c DecisionConfig
	if v, ok := table["active_provider"].(string); ok {
		c.ActiveProvider = v
	}
	if v, ok := table["available_providers"].([]any); ok {
		for _, entry := range v {
			if name, ok := entry.(string); ok && name != "" {
				c.AvailableProviders = append(c.AvailableProviders, name)
			}
		}
	}
	return c
}

// defaultProvider is the active provider of last resort when neither the
// Setup argument nor DecisionConfig.ActiveProvider names one.
const defaultProvider = "maicore"

// Manager owns the single active DecisionProvider. It subscribes to
// data.message and passes each message unchanged to the active provider's
// fire-and-forget Decide -- the provider itself builds the Intent (with its
// SourceContext) and publishes decision.intent.
// Manager only subscribes to Input Domain events and never touches Output
// Domain events, keeping the three domains acyclic.
type Manager struct {
	bus      *eventbus.Bus
	registry *registry.Registry
	ctx      provider.Context
	logger   *slog.Logger

	mu           sync.Mutex
	current      provider.DecisionProvider
	currentName  string
	subscription string

	decideWG sync.WaitGroup
}

// NewManager constructs a Decision Manager bound to bus and registry. ctx is
// the dependency bundle forwarded to every constructed DecisionProvider.
func NewManager(bus *eventbus.Bus, reg *registry.Registry, ctx provider.Context, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{bus: bus, registry: reg, ctx: ctx, logger: logger.With("component", "decision.Manager")}
}

// Setup creates and starts the resolved provider (via the Provider
// Registry) as the active provider, then subscribes to data.message. An
// empty providerName resolves through decisionConfig.ActiveProvider and
// finally defaultProvider; a resolved name missing from
// decisionConfig.AvailableProviders logs a warning but does not fail.
// Calling Setup again replaces the active provider, cleaning up the
// previous one first.
func (m *Manager) Setup(ctx context.Context, providerName string, config map[string]any, decisionConfig DecisionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if providerName == "" {
		providerName = decisionConfig.ActiveProvider
	}
	if providerName == "" {
		providerName = defaultProvider
	}
	if len(decisionConfig.AvailableProviders) > 0 && !slices.Contains(decisionConfig.AvailableProviders, providerName) {
		m.logger.Warn("decision provider not listed in available_providers",
			"provider", providerName, "available", decisionConfig.AvailableProviders)
	}

	if m.current != nil {
		m.logger.Info("cleaning up current decision provider", "provider", m.currentName)
		if err := m.current.Cleanup(); err != nil {
			m.logger.Error("cleanup of current decision provider failed", "provider", m.currentName, "error", err)
		}
		m.current = nil
		m.currentName = ""
	}

	next, err := m.registry.CreateDecision(providerName, config, m.ctx)
	if err != nil {
		return fmt.Errorf("decision: create provider %q: %w", providerName, err)
	}

	if err := next.Start(ctx, m.bus, config); err != nil {
		return fmt.Errorf("decision: start provider %q: %w", providerName, err)
	}

	m.current = next
	m.currentName = providerName
	m.logger.Info("decision provider initialized", "provider", providerName)

	m.emitProviderConnected(ctx, providerName, "")

	if m.subscription == "" {
		m.subscription = eventbus.Subscribe(m.bus, eventregistry.DataMessage, m.onDataMessage, 0)
	}

	return nil
}

// Switch replaces the active provider at runtime. If the new provider fails
// to start, the previous provider remains active and an error is returned.
func (m *Manager) Switch(ctx context.Context, providerName string, config map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldProvider, oldName := m.current, m.currentName

	next, err := m.registry.CreateDecision(providerName, config, m.ctx)
	if err != nil {
		return fmt.Errorf("decision: create provider %q: %w", providerName, err)
	}
	if err := next.Start(ctx, m.bus, config); err != nil {
		return fmt.Errorf("decision: start provider %q: %w", providerName, err)
	}

	if oldProvider != nil {
		m.logger.Info("cleaning up previous decision provider", "provider", oldName)
		if err := oldProvider.Cleanup(); err != nil {
			m.logger.Error("cleanup of previous decision provider failed", "provider", oldName, "error", err)
		}
	}

	m.current = next
	m.currentName = providerName
	m.logger.Info("decision provider switched", "from", oldName, "to", providerName)

	m.emitProviderConnected(ctx, providerName, oldName)

	return nil
}

// Decide triggers the active provider's fire-and-forget decision in a
// tracked background goroutine, so a slow provider never blocks the
// data.message handler. If no provider is active the call is a logged
// no-op. Cleanup waits for outstanding Decide goroutines before returning.
func (m *Manager) Decide(ctx context.Context, msg types.NormalizedMessage) {
	m.mu.Lock()
	current := m.current
	name := m.currentName
	m.mu.Unlock()

	if current == nil {
		m.logger.Warn("no active decision provider, skipping decision")
		return
	}

	m.logger.Debug("triggering decision", "provider", name)
	m.decideWG.Add(1)
	go func() {
		defer m.decideWG.Done()
		current.Decide(ctx, msg)
	}()
}

// CurrentProvider returns the active provider's registered name, or "" if
// none is set.
func (m *Manager) CurrentProvider() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentName
}

// Cleanup unsubscribes from data.message, waits for outstanding Decide
// goroutines to finish (bounded by ctx), and cleans up the active provider.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscription != "" {
		m.bus.Off(eventregistry.DataMessage, m.subscription)
		m.subscription = ""
	}

	done := make(chan struct{})
	go func() {
		m.decideWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("cleanup: context done before outstanding decisions finished")
	}

	if m.current == nil {
		return nil
	}

	name := m.currentName
	err := m.current.Cleanup()
	m.current = nil
	m.currentName = ""

	_ = m.bus.Emit(ctx, eventregistry.DecisionProviderDisconnect, eventregistry.DecisionProviderDisconnectedPayload{
		Provider: name, Reason: "cleanup",
	}, "decision.Manager")

	if err != nil {
		return fmt.Errorf("decision: cleanup provider %q: %w", name, err)
	}
	return nil
}

func (m *Manager) emitProviderConnected(ctx context.Context, name, previous string) {
	err := m.bus.Emit(ctx, eventregistry.DecisionProviderConnected, eventregistry.DecisionProviderConnectedPayload{
		Provider:         name,
		PreviousProvider: previous,
	}, "decision.Manager")
	if err != nil {
		m.logger.Warn("failed to emit decision provider connected event", "error", err)
	}
}

func (m *Manager) onDataMessage(ctx context.Context, payload eventregistry.DataMessagePayload, _ string) error {
	m.logger.Debug("triggering decision from data.message", "text_preview", preview(payload.Message.Text))
	m.Decide(ctx, payload.Message)
	return nil
}

func preview(s string) string {
	const n = 50
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
