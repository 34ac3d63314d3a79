// Package input implements the Input Provider Manager and Input Pipeline
// Manager: concurrent provider supervision and the ordered filter chain
// applied to each NormalizedMessage before it is published on the bus.
package input

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// PipelineErrorHandling selects what happens when a pipeline's Process call
// times out or returns an error.
type PipelineErrorHandling string

// The closed set of pipeline error-handling policies.
const (
	Continue PipelineErrorHandling = "continue"
	Stop     PipelineErrorHandling = "stop"
	Drop     PipelineErrorHandling = "drop"
)

// Pipeline is one filter stage in the input pipeline chain.
type Pipeline interface {
	Name() string
	Priority() int
	Enabled() bool
	ErrorHandling() PipelineErrorHandling
	Timeout() time.Duration

	// Process returns the (possibly amended) message, or (nil, nil) to drop
	// it, or a non-nil error if this pipeline could not complete.
	Process(ctx context.Context, msg types.NormalizedMessage) (*types.NormalizedMessage, error)
}

// PipelineError wraps an underlying pipeline failure with the pipeline's
// name, used when a pipeline's ErrorHandling is Stop.
type PipelineError struct {
	Pipeline string
	Err      error
}

func (e *PipelineError) Error() string {
	return "input: pipeline " + e.Pipeline + " failed: " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ErrPipelineTimeout is wrapped into a PipelineError when a pipeline's
// Process call exceeds its own Timeout.
var ErrPipelineTimeout = errors.New("input: pipeline timed out")

// PipelineManager runs an ordered chain of Pipelines over each
// NormalizedMessage produced by an input provider, before it is published.
type PipelineManager struct {
	mu        sync.RWMutex
	pipelines []Pipeline
	sorted    []Pipeline
	dirty     bool
}

// NewPipelineManager returns an empty PipelineManager.
func NewPipelineManager() *PipelineManager {
	return &PipelineManager{dirty: true}
}

// Register adds p to the chain. The priority-sorted order is recomputed
// lazily on the next Process call.
func (m *PipelineManager) Register(p Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines = append(m.pipelines, p)
	m.dirty = true
}

// Unregister removes the first pipeline named name, if present.
func (m *PipelineManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pipelines {
		if p.Name() == name {
			m.pipelines = append(m.pipelines[:i:i], m.pipelines[i+1:]...)
			m.dirty = true
			return
		}
	}
}

// Pipelines returns the registered pipelines in ascending priority order.
func (m *PipelineManager) Pipelines() []Pipeline {
	return m.sortedPipelines()
}

func (m *PipelineManager) sortedPipelines() []Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty {
		sorted := make([]Pipeline, len(m.pipelines))
		copy(sorted, m.pipelines)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
		m.sorted = sorted
		m.dirty = false
	}
	return m.sorted
}

// Process runs msg through every enabled pipeline in priority order. A nil
// result with a nil error means the message was dropped by some pipeline
// (or by a Drop-policy failure); a non-nil error means a Stop-policy
// pipeline failed.
func (m *PipelineManager) Process(ctx context.Context, msg types.NormalizedMessage) (*types.NormalizedMessage, error) {
	current := msg
	for _, p := range m.sortedPipelines() {
		if !p.Enabled() {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, p.Timeout())
		result, err := p.Process(pctx, current)
		timedOut := pctx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil && !timedOut {
			if result == nil {
				return nil, nil
			}
			current = *result
			continue
		}

		if timedOut && err == nil {
			err = ErrPipelineTimeout
		}

		switch p.ErrorHandling() {
		case Stop:
			return nil, &PipelineError{Pipeline: p.Name(), Err: err}
		case Drop:
			return nil, nil
		default: // Continue
			continue
		}
	}
	return &current, nil
}
