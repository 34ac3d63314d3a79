// Package extension implements the Extension Manager: a registry of
// composite plugins that each own several providers and declare dependencies
// on other extensions, loaded in dependency order.
//
// Dependency handling is three-colour DFS cycle detection followed by a
// Kahn's-algorithm topological sort. A cycle blocks the whole batch; a
// single extension's setup failure is isolated and does not abort the rest.
// Cleanup runs in reverse load order. Discovery is a static Register call
// per extension package, the same pattern internal/input/register.go uses
// for provider discovery.
package extension

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Extension is a composite plugin that owns one or more providers and may
// declare dependencies on other extensions that must load first.
type Extension interface {
	// Info describes this extension for dependency resolution and display.
	Info() types.ExtensionInfo

	// Dependencies names other extensions that must be set up before this
	// one. Equivalent to Info().Dependencies but kept as its own method so
	// an extension instance can compute it dynamically from config when
	// needed.
	Dependencies() []string

	// Setup wires this extension's owned providers against bus using cfg
	// (this extension's own `[extensions.<name>]` config table) and
	// returns the names of the providers it now owns.
	Setup(ctx context.Context, bus *eventbus.Bus, cfg map[string]any) ([]string, error)

	// Cleanup releases everything Setup acquired.
	Cleanup(ctx context.Context) error
}

// Factory constructs an Extension from its config table. The instance is
// created before Setup so the manager can read Info and Dependencies while
// resolving load order.
type Factory func(cfg map[string]any) (Extension, error)

// Manager discovers (via static Register calls), dependency-orders, and
// drives the lifecycle of every enabled extension.
type Manager struct {
	logger *slog.Logger
	bus    *eventbus.Bus

	mu         sync.Mutex
	factories  map[string]Factory
	loaded     map[string]Extension
	infos      map[string]types.ExtensionInfo
	loadOrder  []string
	lastConfig map[string]map[string]any
}

// New returns a Manager dispatching extension events on bus.
func New(bus *eventbus.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		bus:       bus,
		factories: make(map[string]Factory),
		loaded:    make(map[string]Extension),
		infos:     make(map[string]types.ExtensionInfo),
	}
}

// Register binds name to factory. Called once at startup, before config is
// loaded, for every built-in extension package this build links in.
func (m *Manager) Register(name string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.factories[name]; exists {
		m.logger.Warn("re-registering extension", "name", name)
	}
	m.factories[name] = factory
}

// Result records one extension's load outcome.
type Result struct {
	Name      string
	Loaded    bool
	Providers []string
	Err       error
}

// LoadAll instantiates every registered extension whose
// extensionsConfig[name]["enabled"] is true (default true when the name is
// absent), resolves load order from declared dependencies, and detects
// cycles up front — a cycle fails the whole batch before any Setup runs —
// then calls Setup on each in order. One extension's Setup failure is isolated:
// it is recorded as unsuccessful but does not prevent the rest of the batch
// from loading.
func (m *Manager) LoadAll(ctx context.Context, extensionsConfig map[string]map[string]any) (map[string]Result, error) {
	m.mu.Lock()
	factories := make(map[string]Factory, len(m.factories))
	for name, f := range m.factories {
		factories[name] = f
	}
	m.mu.Unlock()

	results := make(map[string]Result)
	if len(factories) == 0 {
		m.logger.Warn("no extensions registered")
		return results, nil
	}

	graph := make(map[string][]string)
	instances := make(map[string]Extension)
	infos := make(map[string]types.ExtensionInfo)
	configs := make(map[string]map[string]any)

	for name, factory := range factories {
		cfg := extensionsConfig[name]
		if enabled, ok := cfg["enabled"].(bool); ok && !enabled {
			m.logger.Info("extension disabled, skipping", "name", name)
			continue
		}
		inst, err := factory(cfg)
		if err != nil {
			m.logger.Error("failed to construct extension", "name", name, "error", err)
			results[name] = Result{Name: name, Err: err}
			continue
		}
		info := inst.Info()
		deps := inst.Dependencies()
		graph[name] = deps
		instances[name] = inst
		infos[name] = info
		configs[name] = cfg
	}

	order, err := topoSort(graph)
	if err != nil {
		return nil, err
	}
	m.logger.Info("extension load order", "order", order)

	m.mu.Lock()
	for _, name := range order {
		inst := instances[name]
		cfg := configs[name]
		providers, err := inst.Setup(ctx, m.bus, cfg)
		if err != nil {
			m.logger.Error("extension setup failed", "name", name, "error", err)
			results[name] = Result{Name: name, Err: err}
			continue
		}
		m.loaded[name] = inst
		m.infos[name] = infos[name]
		m.loadOrder = append(m.loadOrder, name)
		if m.lastConfig == nil {
			m.lastConfig = make(map[string]map[string]any)
		}
		m.lastConfig[name] = cfg
		results[name] = Result{Name: name, Loaded: true, Providers: providers}
		m.logger.Info("extension loaded", "name", name, "providers", providers)
	}
	m.mu.Unlock()

	return results, nil
}

// Get returns the loaded extension instance named name, if any.
func (m *Manager) Get(name string) (Extension, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ext, ok := m.loaded[name]
	return ext, ok
}

// LoadedNames returns every currently loaded extension's name in load order.
func (m *Manager) LoadedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadOrder...)
}

// Info returns the recorded ExtensionInfo for name, if loaded.
func (m *Manager) Info(name string) (types.ExtensionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[name]
	return info, ok
}

// AllInfos returns every loaded extension's ExtensionInfo, keyed by name.
func (m *Manager) AllInfos() map[string]types.ExtensionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.ExtensionInfo, len(m.infos))
	for k, v := range m.infos {
		out[k] = v
	}
	return out
}

// Unload tears down the named extension, refusing when another loaded
// extension still depends on it.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	ext, ok := m.loaded[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotLoaded, name)
	}
	var dependents []string
	for other, info := range m.infos {
		if other == name {
			continue
		}
		for _, dep := range info.Dependencies {
			if dep == name {
				dependents = append(dependents, other)
				break
			}
		}
	}
	if len(dependents) > 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q depended on by %v", ErrHasDependents, name, dependents)
	}
	m.mu.Unlock()

	if err := ext.Cleanup(ctx); err != nil {
		m.logger.Error("extension cleanup failed", "name", name, "error", err)
		return err
	}

	m.mu.Lock()
	delete(m.loaded, name)
	delete(m.infos, name)
	for i, n := range m.loadOrder {
		if n == name {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// Reload tears the named extension down and loads it again against its
// last-known config.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.mu.Lock()
	factory, hasFactory := m.factories[name]
	cfg := m.lastConfig[name]
	m.mu.Unlock()
	if !hasFactory {
		return fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	if _, loaded := m.Get(name); loaded {
		if err := m.Unload(ctx, name); err != nil {
			return err
		}
	}

	inst, err := factory(cfg)
	if err != nil {
		return err
	}
	providers, err := inst.Setup(ctx, m.bus, cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.loaded[name] = inst
	m.infos[name] = inst.Info()
	m.loadOrder = append(m.loadOrder, name)
	m.mu.Unlock()

	m.logger.Info("extension reloaded", "name", name, "providers", providers)
	return nil
}

// CleanupAll tears down every loaded extension in reverse load order,
// swallowing individual cleanup errors to maximise resource release
// (matching every other manager's cleanup_all tolerance in this codebase).
func (m *Manager) CleanupAll(ctx context.Context) {
	m.mu.Lock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		m.mu.Lock()
		ext, ok := m.loaded[name]
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := ext.Cleanup(ctx); err != nil {
			m.logger.Error("extension cleanup failed", "name", name, "error", err)
		}
	}

	m.mu.Lock()
	m.loaded = make(map[string]Extension)
	m.infos = make(map[string]types.ExtensionInfo)
	m.loadOrder = nil
	m.mu.Unlock()
}

// colour is the three-colour DFS marker used by hasCycle.
type colour int

const (
	white colour = iota
	gray
	black
)

// topoSort returns graph's nodes in dependency order (a node's dependencies
// appear strictly before it) using Kahn's algorithm, after an up-front
// three-colour DFS cycle check. A cyclic graph returns ErrCyclicDependency
// and no partial order, matching "fail fast, load nothing" semantics.
func topoSort(graph map[string][]string) ([]string, error) {
	if err := checkCycle(graph); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(graph))
	for node := range graph {
		inDegree[node] = 0
	}
	for _, deps := range graph {
		for _, dep := range deps {
			if _, known := inDegree[dep]; !known {
				// A dependency on an unregistered/disabled extension is
				// treated as already-satisfied: there is no node to order
				// it against.
				continue
			}
		}
	}
	// in-degree counts edges dep -> node (node depends on dep), i.e. node's
	// in-degree is how many of its declared dependencies are themselves
	// known nodes.
	for node, deps := range graph {
		count := 0
		for _, dep := range deps {
			if _, known := graph[dep]; known {
				count++
			}
		}
		inDegree[node] = count
	}

	// dependents[dep] = nodes that list dep as a dependency.
	dependents := make(map[string][]string)
	for node, deps := range graph {
		for _, dep := range deps {
			if _, known := graph[dep]; known {
				dependents[dep] = append(dependents[dep], node)
			}
		}
	}

	var queue []string
	for node := range graph {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		next := append([]string(nil), dependents[node]...)
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(graph) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// checkCycle runs a three-colour DFS over graph, returning
// ErrCyclicDependency on the first back edge found.
func checkCycle(graph map[string][]string) error {
	colours := make(map[string]colour, len(graph))
	var visit func(node string) error
	visit = func(node string) error {
		switch colours[node] {
		case black:
			return nil
		case gray:
			return ErrCyclicDependency
		}
		colours[node] = gray
		for _, dep := range graph[node] {
			if _, known := graph[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		colours[node] = black
		return nil
	}
	for node := range graph {
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
