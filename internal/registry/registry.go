// Package registry is the Provider Registry: a name-to-factory map per
// layer (input, decision, output), the one place provider packages are
// bound to the names configuration refers to them by.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mai-with-u/amaidesu/internal/provider"
)

// InputFactory constructs an InputProvider from its merged config and
// dependency context.
type InputFactory func(config map[string]any, ctx provider.Context) (provider.InputProvider, error)

// DecisionFactory constructs a DecisionProvider.
type DecisionFactory func(config map[string]any, ctx provider.Context) (provider.DecisionProvider, error)

// OutputFactory constructs an OutputProvider.
type OutputFactory func(config map[string]any, ctx provider.Context) (provider.OutputProvider, error)

// Registry holds one name-to-factory map per layer (input, decision,
// output). Provider names are unique in practice across layers.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	input    map[string]InputFactory
	decision map[string]DecisionFactory
	output   map[string]OutputFactory
}

// New returns an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		input:    make(map[string]InputFactory),
		decision: make(map[string]DecisionFactory),
		output:   make(map[string]OutputFactory),
	}
}

// RegisterInput binds name to factory in the input layer. Re-registration
// overwrites the previous factory and logs a warning.
func (r *Registry) RegisterInput(name string, factory InputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.input[name]; exists {
		r.logger.Warn("re-registering input provider", "name", name)
	}
	r.input[name] = factory
}

// RegisterDecision binds name to factory in the decision layer.
func (r *Registry) RegisterDecision(name string, factory DecisionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decision[name]; exists {
		r.logger.Warn("re-registering decision provider", "name", name)
	}
	r.decision[name] = factory
}

// RegisterOutput binds name to factory in the output layer.
func (r *Registry) RegisterOutput(name string, factory OutputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.output[name]; exists {
		r.logger.Warn("re-registering output provider", "name", name)
	}
	r.output[name] = factory
}

// CreateInput constructs the named input provider.
func (r *Registry) CreateInput(name string, config map[string]any, ctx provider.Context) (provider.InputProvider, error) {
	r.mu.RLock()
	factory, ok := r.input[name]
	available := availableNames(r.input)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: input/%q (available: %v)", ErrUnknownProvider, name, available)
	}
	return factory(config, ctx)
}

// CreateDecision constructs the named decision provider.
func (r *Registry) CreateDecision(name string, config map[string]any, ctx provider.Context) (provider.DecisionProvider, error) {
	r.mu.RLock()
	factory, ok := r.decision[name]
	available := availableNames(r.decision)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: decision/%q (available: %v)", ErrUnknownProvider, name, available)
	}
	return factory(config, ctx)
}

// CreateOutput constructs the named output provider.
func (r *Registry) CreateOutput(name string, config map[string]any, ctx provider.Context) (provider.OutputProvider, error) {
	r.mu.RLock()
	factory, ok := r.output[name]
	available := availableNames(r.output)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q (available: %v)", ErrUnknownProvider, name, available)
	}
	return factory(config, ctx)
}

// UnregisterInput removes name from the input layer, if present.
func (r *Registry) UnregisterInput(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.input, name)
}

// UnregisterDecision removes name from the decision layer, if present.
func (r *Registry) UnregisterDecision(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.decision, name)
}

// UnregisterOutput removes name from the output layer, if present.
func (r *Registry) UnregisterOutput(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.output, name)
}

// ClearAll drops every registration in every layer. Intended for test setup.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input = make(map[string]InputFactory)
	r.decision = make(map[string]DecisionFactory)
	r.output = make(map[string]OutputFactory)
}

// Info is a debugging dump of every registered name per layer.
type Info struct {
	Input    []string
	Decision []string
	Output   []string
}

// Info returns the currently registered provider names per layer.
func (r *Registry) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Info{
		Input:    availableNames(r.input),
		Decision: availableNames(r.decision),
		Output:   availableNames(r.output),
	}
}

func availableNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}
