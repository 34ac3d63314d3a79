// Package memory implements the Context/Conversation service: the
// per-session transcript log a decision provider consults for recent
// history before calling the LLM. It wraps a pkg/memory.SessionStore
// (the notes store is exercised directly through pkg/memory by the MCP
// memory tools, not through this package) and adapts its
// duration-windowed GetRecent into the count-bounded Recent that
// internal/provider.ConversationStore requires.
//
// The default backend (InMemoryStore) is a capped ring buffer per
// session; a deployment that needs durability swaps in
// pkg/memory/postgres.Store's Sessions() instead, since both satisfy
// pkg/memory.SessionStore.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/memory"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// defaultSessionCap bounds how many entries InMemoryStore retains per
// session before evicting the oldest.
const defaultSessionCap = 500

// InMemoryStore is a process-local pkg/memory.SessionStore backed by a
// capped slice per session. Search is a naive substring scan; anything
// smarter belongs to a durable backend.
type InMemoryStore struct {
	cap int

	mu       sync.RWMutex
	sessions map[string][]types.TranscriptEntry
}

// NewInMemoryStore returns an InMemoryStore retaining up to perSessionCap
// entries per session; perSessionCap <= 0 selects defaultSessionCap.
func NewInMemoryStore(perSessionCap int) *InMemoryStore {
	if perSessionCap <= 0 {
		perSessionCap = defaultSessionCap
	}
	return &InMemoryStore{cap: perSessionCap, sessions: make(map[string][]types.TranscriptEntry)}
}

// WriteEntry implements pkg/memory.SessionStore.
func (s *InMemoryStore) WriteEntry(_ context.Context, sessionID string, entry types.TranscriptEntry) error {
	if sessionID == "" {
		return fmt.Errorf("memory: empty sessionID")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.sessions[sessionID], entry)
	if over := len(log) - s.cap; over > 0 {
		log = log[over:]
	}
	s.sessions[sessionID] = log
	return nil
}

// GetRecent implements pkg/memory.SessionStore: it returns every entry for
// sessionID whose Timestamp is no earlier than now-duration, oldest first.
func (s *InMemoryStore) GetRecent(_ context.Context, sessionID string, duration time.Duration) ([]types.TranscriptEntry, error) {
	cutoff := time.Now().Add(-duration)

	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.sessions[sessionID]
	out := make([]types.TranscriptEntry, 0, len(log))
	for _, e := range log {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Search implements pkg/memory.SessionStore with a naive case-insensitive
// substring match against Text, scoped by opts.SessionID and opts.SpeakerID
// when set. It exists to satisfy the interface for callers that don't have
// a durable backend configured; it is not a replacement for one.
func (s *InMemoryStore) Search(_ context.Context, query string, opts memory.SearchOpts) ([]types.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []types.TranscriptEntry
	if opts.SessionID != "" {
		candidates = s.sessions[opts.SessionID]
	} else {
		for _, log := range s.sessions {
			candidates = append(candidates, log...)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Timestamp.Before(candidates[j].Timestamp) })
	}

	out := make([]types.TranscriptEntry, 0)
	for _, e := range candidates {
		if opts.SpeakerID != "" && e.SpeakerID != opts.SpeakerID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Text), strings.ToLower(query)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

var _ memory.SessionStore = (*InMemoryStore)(nil)

// lookbackWindow bounds how far back Service.Recent asks the underlying
// SessionStore to search before trimming to the requested count. Session
// stores are duration-windowed (pkg/memory.SessionStore.GetRecent), not
// count-windowed, so this is a generous ceiling rather than an exact
// correspondence to n.
const lookbackWindow = 24 * time.Hour

// Service is the Context/Conversation service: it records transcript
// entries and answers count-bounded recent-history lookups for the
// decision layer, satisfying internal/provider.ConversationStore.
type Service struct {
	logger *slog.Logger
	store  memory.SessionStore
}

// New returns a Service backed by store. A nil store is replaced with a
// fresh InMemoryStore using defaultSessionCap.
func New(store memory.SessionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewInMemoryStore(defaultSessionCap)
	}
	return &Service{logger: logger, store: store}
}

// Record appends entry to sessionID's transcript log.
func (s *Service) Record(ctx context.Context, sessionID string, entry types.TranscriptEntry) error {
	if err := s.store.WriteEntry(ctx, sessionID, entry); err != nil {
		return fmt.Errorf("memory: write entry: %w", err)
	}
	return nil
}

// Recent returns the n most recent transcript entries for sessionID,
// oldest first, adapting the underlying store's duration-windowed
// GetRecent to a count bound. It satisfies internal/provider.ConversationStore.
func (s *Service) Recent(ctx context.Context, sessionID string, n int) ([]types.TranscriptEntry, error) {
	if n <= 0 {
		return []types.TranscriptEntry{}, nil
	}

	entries, err := s.store.GetRecent(ctx, sessionID, lookbackWindow)
	if err != nil {
		return nil, fmt.Errorf("memory: get recent: %w", err)
	}
	if len(entries) <= n {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Search delegates to the underlying store, for callers that want a
// keyword lookup across a session's history rather than a strict
// recency window.
func (s *Service) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]types.TranscriptEntry, error) {
	out, err := s.store.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	return out, nil
}
