package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/config"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/registry"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// ErrAlreadyStarted is returned by StartAll if the manager's providers are
// already running.
var ErrAlreadyStarted = errors.New("input: manager already started")

// stopTimeout bounds how long StopAll waits for provider goroutines to
// terminate after Stop is signalled, before abandoning stragglers.
const stopTimeout = 10 * time.Second

// Manager loads, runs, and supervises the set of enabled input providers.
type Manager struct {
	logger   *slog.Logger
	bus      *eventbus.Bus
	pipeline *PipelineManager

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	named   map[string]provider.InputProvider
}

// NewManager returns a Manager publishing normalized messages on bus,
// optionally running them through pipeline first (nil disables the
// pipeline stage entirely).
func NewManager(bus *eventbus.Bus, pipeline *PipelineManager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, bus: bus, pipeline: pipeline, named: make(map[string]provider.InputProvider)}
}

// LoadFromConfig constructs every provider named in providers.input.enabled_inputs
// via reg, skipping (logging) any that fail to construct — one misconfigured
// provider never prevents the rest of the input domain from loading.
func (m *Manager) LoadFromConfig(svc *config.Service, reg *registry.Registry, ctx provider.Context) ([]provider.InputProvider, error) {
	section := svc.GetSection("providers.input")
	names, _ := section["enabled_inputs"].([]any)

	providerConfigs := svc.GetAllProviderConfigs("input")

	var out []provider.InputProvider
	for _, raw := range names {
		name, ok := raw.(string)
		if !ok || name == "" {
			continue
		}
		cfg := providerConfigs[name]
		p, err := reg.CreateInput(name, cfg, ctx)
		if err != nil {
			m.logger.Error("skipping input provider", "name", name, "error", err)
			continue
		}
		m.named[name] = p
		out = append(out, p)
	}
	return out, nil
}

// StartAll spawns one supervised goroutine per provider and returns
// promptly; the goroutines keep running in the background until StopAll.
func (m *Manager) StartAll(ctx context.Context, providers []provider.InputProvider) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true
	m.mu.Unlock()

	for _, p := range providers {
		m.wg.Add(1)
		go m.runProvider(runCtx, p)
	}
	return nil
}

func (m *Manager) runProvider(ctx context.Context, p provider.InputProvider) {
	defer m.wg.Done()
	defer func() {
		if err := p.Stop(); err != nil {
			m.logger.Warn("input provider stop error", "error", err)
		}
	}()

	if err := p.Start(ctx); err != nil {
		m.logger.Error("input provider failed to start", "error", err)
		return
	}

	messages, errs := p.Stream(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Error("input provider stream error", "error", err)
		case msg, ok := <-messages:
			if !ok {
				return
			}
			m.publish(ctx, msg)
		}
	}
}

func (m *Manager) publish(ctx context.Context, msg types.NormalizedMessage) {
	if m.pipeline != nil {
		result, err := m.pipeline.Process(ctx, msg)
		if err != nil {
			m.logger.Error("input pipeline error, message dropped", "error", err)
			return
		}
		if result == nil {
			return
		}
		msg = *result
	}

	if err := msg.Valid(); err != nil {
		m.logger.Error("input provider produced invalid message, dropping", "error", err, "source", msg.Source)
		return
	}

	payload := eventregistry.DataMessagePayload{
		Message:   msg,
		Source:    msg.Source,
		Timestamp: msg.Timestamp,
		Metadata:  msg.Metadata,
	}
	if err := m.bus.Emit(ctx, eventregistry.DataMessage, payload, msg.Source); err != nil {
		m.logger.Error("failed to publish data.message", "error", err)
	}
}

// StopAll cancels the shared context, waits up to stopTimeout for provider
// goroutines to drain, and abandons stragglers past that deadline.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.started = false
	m.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		return fmt.Errorf("input: stop timed out after %s, goroutines abandoned", stopTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
