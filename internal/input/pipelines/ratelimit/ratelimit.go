// Package ratelimit implements the rate-limit input pipeline: sliding-window
// counters keyed by user ID and a global counter, dropping messages once
// either limit is reached within the configured window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Config holds the tunables for one Pipeline instance.
type Config struct {
	GlobalRateLimit int           // messages/window, default 100
	UserRateLimit   int           // messages/window/user, default 10
	WindowSize      time.Duration // default 60s
	Priority        int
	Enabled         bool
	ErrorHandling   input.PipelineErrorHandling
	Timeout         time.Duration
}

func (c Config) normalized() Config {
	if c.GlobalRateLimit <= 0 {
		c.GlobalRateLimit = 100
	}
	if c.UserRateLimit <= 0 {
		c.UserRateLimit = 10
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 60 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.ErrorHandling == "" {
		c.ErrorHandling = input.Continue
	}
	return c
}

// Stats holds this pipeline's processing counters.
type Stats struct {
	ProcessedCount int
	DroppedCount   int
	ErrorCount     int
}

// Pipeline is the rate-limit input.Pipeline implementation.
type Pipeline struct {
	cfg Config

	mu     sync.Mutex
	global []time.Time
	byUser map[string][]time.Time
	stats  Stats
}

// New returns a Pipeline configured by cfg (defaults applied for zero values).
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg.normalized(), byUser: make(map[string][]time.Time)}
}

func (p *Pipeline) Name() string                               { return "rate_limit" }
func (p *Pipeline) Priority() int                              { return p.cfg.Priority }
func (p *Pipeline) Enabled() bool                              { return p.cfg.Enabled }
func (p *Pipeline) ErrorHandling() input.PipelineErrorHandling { return p.cfg.ErrorHandling }
func (p *Pipeline) Timeout() time.Duration                     { return p.cfg.Timeout }

// Stats returns a copy of this pipeline's counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func userID(msg types.NormalizedMessage) string {
	if v, ok := msg.Metadata["user_id"].(string); ok && v != "" {
		return v
	}
	if accessor, ok := msg.Raw.(types.RawAccessor); ok {
		return accessor.UserID()
	}
	return ""
}

// Process evicts stale timestamps from the global and per-user deques, then
// drops the message if either limit is already at capacity; otherwise
// records the message and passes it through unmodified.
func (p *Pipeline) Process(ctx context.Context, msg types.NormalizedMessage) (*types.NormalizedMessage, error) {
	now := time.Now()
	cutoff := now.Add(-p.cfg.WindowSize)
	uid := userID(msg)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.ProcessedCount++

	p.global = evict(p.global, cutoff)
	if len(p.global) >= p.cfg.GlobalRateLimit {
		p.stats.DroppedCount++
		p.evictAllUserBucketsLocked(cutoff)
		return nil, nil
	}

	if uid != "" {
		bucket := evict(p.byUser[uid], cutoff)
		if len(bucket) == 0 {
			delete(p.byUser, uid)
		} else {
			p.byUser[uid] = bucket
		}
		if len(bucket) >= p.cfg.UserRateLimit {
			p.stats.DroppedCount++
			return nil, nil
		}
		p.byUser[uid] = append(bucket, now)
	}

	p.global = append(p.global, now)
	return &msg, nil
}

// evictAllUserBucketsLocked prunes every per-user deque and deletes any that
// evict down to empty, so the map never leaks entries for users who stopped
// messaging. Must be called with p.mu held.
func (p *Pipeline) evictAllUserBucketsLocked(cutoff time.Time) {
	for uid, bucket := range p.byUser {
		pruned := evict(bucket, cutoff)
		if len(pruned) == 0 {
			delete(p.byUser, uid)
		} else {
			p.byUser[uid] = pruned
		}
	}
}

func evict(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && timestamps[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0:0], timestamps[idx:]...)
}
