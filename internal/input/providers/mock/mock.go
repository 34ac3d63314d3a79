// Package mock provides an in-memory mock InputProvider for tests and for
// wiring the "happy path" end-to-end scenario without a live data source.
package mock

import (
	"context"
	"sync"

	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Compile-time interface assertion.
var _ provider.InputProvider = (*Provider)(nil)

// Provider is a scriptable InputProvider: test code pushes messages via
// Send and reads errors injected via Fail.
type Provider struct {
	mu       sync.Mutex
	messages chan types.NormalizedMessage
	errs     chan error

	StartError   error
	StopError    error
	CleanupError error

	CallCountStart   int
	CallCountStop    int
	CallCountCleanup int
}

// New returns an unstarted mock input provider with a small internal buffer.
func New() *Provider {
	return &Provider{
		messages: make(chan types.NormalizedMessage, 16),
		errs:     make(chan error, 4),
	}
}

// Send delivers msg to the next Stream call's channel. Safe to call
// concurrently with Stream.
func (p *Provider) Send(msg types.NormalizedMessage) {
	p.messages <- msg
}

// Fail delivers err on the stream's error channel.
func (p *Provider) Fail(err error) {
	p.errs <- err
}

func (p *Provider) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStart++
	return p.StartError
}

func (p *Provider) Stream(ctx context.Context) (<-chan types.NormalizedMessage, <-chan error) {
	out := make(chan types.NormalizedMessage)
	errs := make(chan error)
	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-p.messages:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			case e := <-p.errs:
				select {
				case errs <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errs
}

func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	if p.StopError != nil {
		return p.StopError
	}
	return p.Cleanup()
}

func (p *Provider) Cleanup() error {
	p.CallCountCleanup++
	return p.CleanupError
}

func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "input", Name: "mock_input", Source: "internal/input/providers/mock"}
}
