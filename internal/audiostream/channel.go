// Package audiostream implements the Audio Stream Channel: fan-out of audio
// chunks from a single publisher (the active TTS provider during one
// utterance) to multiple subscribers, each with its own bounded queue,
// backpressure policy, and dedicated consumer goroutine, so one slow
// consumer never stalls the others.
package audiostream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// blockPollInterval bounds how long a Block-strategy publish waits between
// rechecking queue capacity; kept small since utterances are short-lived.
const blockPollInterval = 5 * time.Millisecond

// BackpressureStrategy selects what a subscriber's queue does when full.
type BackpressureStrategy string

// The closed set of backpressure strategies.
const (
	Block      BackpressureStrategy = "block"
	DropNewest BackpressureStrategy = "drop_newest"
	DropOldest BackpressureStrategy = "drop_oldest"
	FailFast   BackpressureStrategy = "fail_fast"
)

// SubscriptionConfig controls one subscriber's queue and backpressure policy.
type SubscriptionConfig struct {
	// QueueSize is clamped to [1, 1000]; zero selects the default of 100.
	QueueSize int

	BackpressureStrategy BackpressureStrategy

	// DegradationThreshold is the drop-rate (0–1) above which a warning is
	// logged, at most once over the subscriber's lifetime.
	DegradationThreshold float64
}

func (c SubscriptionConfig) normalized() SubscriptionConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.QueueSize > 1000 {
		c.QueueSize = 1000
	}
	if c.BackpressureStrategy == "" {
		c.BackpressureStrategy = Block
	}
	return c
}

// PublishResult reports the outcome of one Publish call.
type PublishResult struct {
	// SuccessCount is the number of subscribers whose delivery returned no
	// error; a drop_newest or drop_oldest subscriber that discarded a chunk
	// still counts here.
	SuccessCount int
	// DropCount is the running total of chunks dropped so far by all
	// current subscribers, not only the drops caused by this chunk.
	DropCount int
	// Errors holds the delivery error per subscriber name (fail_fast on a
	// full queue, or a Block wait ended by ctx or by the subscriber closing).
	Errors map[string]error
}

type chunkMsg struct {
	chunk types.AudioChunk
}

type controlMsg struct {
	start *types.AudioMetadata
	end   *types.AudioMetadata
}

type subscriber struct {
	id     string
	name   string
	cfg    SubscriptionConfig
	onFunc struct {
		start func(types.AudioMetadata)
		chunk func(types.AudioChunk)
		end   func(types.AudioMetadata)
	}

	mu          sync.Mutex
	queue       []types.AudioChunk
	dropCount   int
	degradedLog bool

	notify chan struct{}
	ctrl   chan controlMsg
	done   chan struct{}
}

// Channel is the multi-subscriber Audio Stream Channel.
type Channel struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber
	seq  uint64

	closed bool
}

// New returns an empty Channel.
func New(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{logger: logger, subs: make(map[string]*subscriber)}
}

// Subscribe registers a subscriber with its own consumer goroutine. The
// three callbacks are invoked only from that goroutine, never from the
// publisher's goroutine — a slow callback blocks only its own queue,
// governed by cfg's backpressure strategy, never the publisher directly
// (except under Block, which is the explicit point of that strategy).
func (c *Channel) Subscribe(name string, onStart func(types.AudioMetadata), onChunk func(types.AudioChunk), onEnd func(types.AudioMetadata), cfg SubscriptionConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrChannelClosed
	}

	c.seq++
	id := fmt.Sprintf("%s-%d", name, c.seq)
	sub := &subscriber{
		id:     id,
		name:   name,
		cfg:    cfg.normalized(),
		notify: make(chan struct{}, 1),
		ctrl:   make(chan controlMsg, 4),
		done:   make(chan struct{}),
	}
	sub.onFunc.start = onStart
	sub.onFunc.chunk = onChunk
	sub.onFunc.end = onEnd

	c.subs[id] = sub
	go c.runSubscriber(sub)
	return id, nil
}

// Unsubscribe removes a subscriber and signals its consumer goroutine to
// stop. It does not wait for that goroutine to exit, and chunks still
// queued for the subscriber are discarded.
func (c *Channel) Unsubscribe(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	c.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// NotifyStart invokes every subscriber's onStart callback. Panics inside a
// callback are recovered and logged; they never propagate to the publisher
// or to sibling subscribers.
func (c *Channel) NotifyStart(meta types.AudioMetadata) {
	for _, sub := range c.snapshot() {
		select {
		case sub.ctrl <- controlMsg{start: &meta}:
		case <-sub.done:
		}
	}
}

// NotifyEnd invokes every subscriber's onEnd callback.
func (c *Channel) NotifyEnd(meta types.AudioMetadata) {
	for _, sub := range c.snapshot() {
		select {
		case sub.ctrl <- controlMsg{end: &meta}:
		case <-sub.done:
		}
	}
}

// Publish fans chunk out to every subscriber according to each one's
// backpressure strategy.
func (c *Channel) Publish(ctx context.Context, chunk types.AudioChunk) PublishResult {
	result := PublishResult{Errors: make(map[string]error)}
	for _, sub := range c.snapshot() {
		if err := c.deliver(ctx, sub, chunk); err != nil {
			result.Errors[sub.name] = err
			continue
		}
		result.SuccessCount++
	}

	var totalDrops int
	for _, sub := range c.snapshot() {
		sub.mu.Lock()
		totalDrops += sub.dropCount
		sub.mu.Unlock()
	}
	result.DropCount = totalDrops
	return result
}

func (c *Channel) deliver(ctx context.Context, sub *subscriber, chunk types.AudioChunk) error {
	sub.mu.Lock()
	switch sub.cfg.BackpressureStrategy {
	case DropOldest:
		if len(sub.queue) >= sub.cfg.QueueSize {
			sub.queue = sub.queue[1:]
			sub.dropCount++
		}
		sub.queue = append(sub.queue, chunk)
		sub.mu.Unlock()
		c.checkDegradation(sub)
		c.wake(sub)
		return nil
	case DropNewest:
		if len(sub.queue) >= sub.cfg.QueueSize {
			sub.dropCount++
			sub.mu.Unlock()
			c.checkDegradation(sub)
			return nil
		}
		sub.queue = append(sub.queue, chunk)
		sub.mu.Unlock()
		c.wake(sub)
		return nil
	case FailFast:
		if len(sub.queue) >= sub.cfg.QueueSize {
			sub.mu.Unlock()
			return ErrQueueFull
		}
		sub.queue = append(sub.queue, chunk)
		sub.mu.Unlock()
		c.wake(sub)
		return nil
	default: // Block
		for len(sub.queue) >= sub.cfg.QueueSize {
			sub.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sub.done:
				return ErrChannelClosed
			case <-time.After(blockPollInterval):
			}
			sub.mu.Lock()
		}
		sub.queue = append(sub.queue, chunk)
		sub.mu.Unlock()
		c.wake(sub)
		return nil
	}
}

func (c *Channel) checkDegradation(sub *subscriber) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.cfg.DegradationThreshold <= 0 || sub.degradedLog {
		return
	}
	total := sub.dropCount + len(sub.queue)
	if total == 0 {
		return
	}
	if float64(sub.dropCount)/float64(total) > sub.cfg.DegradationThreshold {
		sub.degradedLog = true
		c.logger.Warn("audio subscriber drop rate exceeds threshold", "subscriber", sub.name, "drop_count", sub.dropCount)
	}
}

func (c *Channel) wake(sub *subscriber) {
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) snapshot() []*subscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

// runSubscriber is the dedicated consumer goroutine for one subscriber: it
// drains the queue and runs control messages (start/end) in delivery order.
func (c *Channel) runSubscriber(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case ctl := <-sub.ctrl:
			c.invokeControl(sub, ctl)
		case <-sub.notify:
			c.drainChunks(sub)
		}
	}
}

func (c *Channel) drainChunks(sub *subscriber) {
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			return
		}
		chunk := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()
		c.invokeChunk(sub, chunk)
	}
}

func (c *Channel) invokeControl(sub *subscriber, ctl controlMsg) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("audio subscriber callback panic", "subscriber", sub.name, "panic", r)
		}
	}()
	switch {
	case ctl.start != nil && sub.onFunc.start != nil:
		sub.onFunc.start(*ctl.start)
	case ctl.end != nil && sub.onFunc.end != nil:
		sub.onFunc.end(*ctl.end)
	}
}

func (c *Channel) invokeChunk(sub *subscriber, chunk types.AudioChunk) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("audio subscriber callback panic", "subscriber", sub.name, "panic", r)
		}
	}()
	if sub.onFunc.chunk != nil {
		sub.onFunc.chunk(chunk)
	}
}

// Close unsubscribes and stops every subscriber goroutine. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]*subscriber)
	c.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}
