// Package eventregistry is the central catalogue of event-name to
// payload-type bindings used by the event bus to validate emits and
// subscriptions at runtime.
package eventregistry

import (
	"fmt"
	"reflect"
	"sync"
)

// Core event names the managers in this repo publish and subscribe to.
const (
	DataRaw                    = "data.raw"
	DataMessage                = "data.message"
	DecisionRequest            = "decision.request"
	DecisionIntent             = "decision.intent"
	DecisionProviderConnected  = "decision.provider.connected"
	DecisionProviderDisconnect = "decision.provider.disconnected"
	RenderCompleted            = "render.completed"
	RenderFailed               = "render.failed"
	CoreStartup                = "core.startup"
	CoreShutdown               = "core.shutdown"
	CoreError                  = "core.error"
	OBSSendText                = "obs.send_text"
	OBSSwitchScene             = "obs.switch_scene"
	OBSSetSourceVisibility     = "obs.set_source_visibility"
	RemoteStreamRequestImage   = "remote_stream.request_image"
)

// Registry binds event names to the concrete Go type expected for their
// payload, replacing duck-typed payload maps with a closed, statically
// checkable catalogue of event schemas.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register binds eventName to the type of sample. Re-registering the same
// event name with a different type overwrites the previous binding; this is
// a programming-time operation (done during package init), not a runtime
// hot path, so no warning is logged here unlike provider re-registration.
func (r *Registry) Register(eventName string, sample any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[eventName] = reflect.TypeOf(sample)
}

// Validate reports whether payload's concrete type matches the type bound
// to eventName. An event name with no binding is treated as valid — it is
// an extension-defined event carrying an unvalidated shape, per the
// re-architecture note on duck-typed payloads.
func (r *Registry) Validate(eventName string, payload any) error {
	r.mu.RLock()
	want, ok := r.types[eventName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	got := reflect.TypeOf(payload)
	if got != want {
		return fmt.Errorf("%w: event %q expects %s, got %s", ErrTypeMismatch, eventName, want, got)
	}
	return nil
}

// Known reports whether eventName has a registered payload type.
func (r *Registry) Known(eventName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[eventName]
	return ok
}

// Names returns every registered event name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}
