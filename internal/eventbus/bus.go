// Package eventbus implements the in-process typed publish/subscribe
// dispatcher all domain managers communicate through.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Handler is the untyped handler signature the bus dispatches to. Subscribe
// builds one of these from a typed caller-supplied function.
type Handler func(ctx context.Context, payload any, source string) error

type subscription struct {
	id       string
	priority int
	seq      uint64
	handler  Handler
}

// Bus is the in-process event dispatcher. All exported methods are safe for
// concurrent use.
type Bus struct {
	registry *eventregistry.Registry
	logger   *slog.Logger

	mu   sync.RWMutex
	subs map[string][]*subscription
	seq  atomic.Uint64

	statsMu sync.Mutex
	stats   map[string]*types.EventStats

	activeMu sync.Mutex
	active   map[uint64]context.CancelFunc
	activeWG sync.WaitGroup

	closed atomic.Bool
}

// New returns a Bus bound to registry for payload-type validation. If
// registry is nil, eventregistry.NewCore() is used.
func New(registry *eventregistry.Registry, logger *slog.Logger) *Bus {
	if registry == nil {
		registry = eventregistry.NewCore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		registry: registry,
		logger:   logger,
		subs:     make(map[string][]*subscription),
		stats:    make(map[string]*types.EventStats),
		active:   make(map[uint64]context.CancelFunc),
	}
}

// On subscribes handler to eventName at the given priority (lower runs
// earlier). Subscribing implicitly counts toward that event's listener
// stats; it does not register a payload type — use eventregistry.Register
// for that, once, during wiring.
func (b *Bus) On(eventName string, handler Handler, priority int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.seq.Add(1)
	sub := &subscription{
		id:       fmt.Sprintf("%s-%d", eventName, seq),
		priority: priority,
		seq:      seq,
		handler:  handler,
	}
	b.subs[eventName] = append(b.subs[eventName], sub)
	return sub.id
}

// Off removes exactly one subscription identified by id, returned from On
// or Subscribe. Reports whether a subscription was found and removed.
func (b *Bus) Off(eventName, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventName]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventName] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every subscription and every statistic counter.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[string][]*subscription)
	b.mu.Unlock()

	b.statsMu.Lock()
	b.stats = make(map[string]*types.EventStats)
	b.statsMu.Unlock()
}

// Emit publishes payload under eventName. See EmitOption for wait/
// error-isolation behaviour.
func (b *Bus) Emit(ctx context.Context, eventName string, payload any, source string, opts ...EmitOption) error {
	cfg := emitOptions{errorIsolate: true}
	for _, o := range opts {
		o(&cfg)
	}

	if b.closed.Load() {
		b.logger.Warn("emit on closed bus dropped", "event", eventName, "source", source)
		return ErrBusClosed
	}

	if err := b.registry.Validate(eventName, payload); err != nil {
		return err
	}

	b.mu.RLock()
	src := b.subs[eventName]
	subs := make([]*subscription, len(src))
	copy(subs, src)
	b.mu.RUnlock()

	sort.SliceStable(subs, func(i, j int) bool { return subs[i].priority < subs[j].priority })

	b.logger.Info("event emitted", "event", eventName, "source", source, "handlers", len(subs))
	b.recordEmit(eventName, len(subs))

	if !cfg.errorIsolate {
		return b.dispatchSequentialAbortOnError(ctx, eventName, subs, payload, source)
	}

	emitID, emitCtx := b.beginActive(ctx)
	dispatch := func() {
		defer b.endActive(emitID)
		var wg sync.WaitGroup
		wg.Add(len(subs))
		for _, s := range subs {
			go func(s *subscription) {
				defer wg.Done()
				if err := b.invoke(emitCtx, eventName, s, payload, source); err != nil {
					b.recordError(eventName)
					b.logger.Error("handler error", "event", eventName, "handler", s.id, "err", err)
				}
			}(s)
		}
		wg.Wait()
	}

	if cfg.wait {
		dispatch()
		return nil
	}

	b.activeWG.Add(1)
	go func() {
		defer b.activeWG.Done()
		dispatch()
	}()
	return nil
}

func (b *Bus) dispatchSequentialAbortOnError(ctx context.Context, eventName string, subs []*subscription, payload any, source string) error {
	for _, s := range subs {
		if err := b.invoke(ctx, eventName, s, payload, source); err != nil {
			b.recordError(eventName)
			return err
		}
	}
	return nil
}

// invoke calls handler, recovering a panic as an error so one misbehaving
// handler can never take down the dispatch goroutine.
func (b *Bus) invoke(ctx context.Context, eventName string, s *subscription, payload any, source string) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler panic: %v", r)
		}
		b.recordDuration(eventName, time.Since(start))
	}()
	return s.handler(ctx, payload, source)
}

func (b *Bus) beginActive(ctx context.Context) (uint64, context.Context) {
	id := b.seq.Add(1)
	emitCtx, cancel := context.WithCancel(ctx)
	b.activeMu.Lock()
	b.active[id] = cancel
	b.activeMu.Unlock()
	return id, emitCtx
}

func (b *Bus) endActive(id uint64) {
	b.activeMu.Lock()
	delete(b.active, id)
	b.activeMu.Unlock()
}

// Cleanup marks the bus closed (further Emit calls are dropped) and waits
// up to timeout for active emits to finish. If timeout elapses with emits
// still outstanding: when force is false, the bus is reopened and
// ErrCleanupTimedOut is returned; when force is true, outstanding emit
// contexts are cancelled (best-effort, cooperative) and the bus stays
// closed.
func (b *Bus) Cleanup(ctx context.Context, timeout time.Duration, force bool) error {
	b.closed.Store(true)

	done := make(chan struct{})
	go func() {
		b.activeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		if force {
			b.cancelAllActive()
			return nil
		}
		b.closed.Store(false)
		return ErrCleanupTimedOut
	case <-ctx.Done():
		if force {
			b.cancelAllActive()
			return nil
		}
		b.closed.Store(false)
		return ctx.Err()
	}
}

func (b *Bus) cancelAllActive() {
	b.activeMu.Lock()
	defer b.activeMu.Unlock()
	for id, cancel := range b.active {
		cancel()
		delete(b.active, id)
	}
}

// Closed reports whether the bus is currently rejecting emits.
func (b *Bus) Closed() bool {
	return b.closed.Load()
}
