package eventbus

import (
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func (b *Bus) recordEmit(eventName string, listenerCount int) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s := b.stats[eventName]
	if s == nil {
		s = &types.EventStats{}
		b.stats[eventName] = s
	}
	s.EmitCount++
	s.ListenerCount = listenerCount
	s.LastEmitTime = time.Now()
}

func (b *Bus) recordError(eventName string) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s := b.stats[eventName]
	if s == nil {
		s = &types.EventStats{}
		b.stats[eventName] = s
	}
	s.ErrorCount++
	s.LastErrorTime = time.Now()
}

func (b *Bus) recordDuration(eventName string, d time.Duration) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s := b.stats[eventName]
	if s == nil {
		s = &types.EventStats{}
		b.stats[eventName] = s
	}
	s.TotalExecutionTimeMs += float64(d.Microseconds()) / 1000.0
}

// Stats returns a copy of the counters tracked for eventName. The boolean
// result is false if the event has never been emitted.
func (b *Bus) Stats(eventName string) (types.EventStats, bool) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s, ok := b.stats[eventName]
	if !ok {
		return types.EventStats{}, false
	}
	return *s, true
}

// AllStats returns a copy of every tracked event's counters, keyed by name.
func (b *Bus) AllStats() map[string]types.EventStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	out := make(map[string]types.EventStats, len(b.stats))
	for name, s := range b.stats {
		out[name] = *s
	}
	return out
}
