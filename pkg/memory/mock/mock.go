// Package mock provides test doubles for the pkg/memory interfaces, in the
// exported-fields style the rest of this repo's mocks use: pre-load the
// *Result fields, set *Err to force failures, inspect Calls afterwards.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/memory"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Call records one invocation of a store method.
type Call struct {
	Method string
	Args   []any
}

// SessionStore is a scriptable memory.SessionStore double.
type SessionStore struct {
	mu    sync.Mutex
	calls []Call

	WriteEntryErr error

	GetRecentResult []types.TranscriptEntry
	GetRecentErr    error

	SearchResult []types.TranscriptEntry
	SearchErr    error
}

var _ memory.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) WriteEntry(_ context.Context, sessionID string, entry types.TranscriptEntry) error {
	s.record("WriteEntry", sessionID, entry)
	return s.WriteEntryErr
}

func (s *SessionStore) GetRecent(_ context.Context, sessionID string, window time.Duration) ([]types.TranscriptEntry, error) {
	s.record("GetRecent", sessionID, window)
	if s.GetRecentErr != nil {
		return nil, s.GetRecentErr
	}
	return append([]types.TranscriptEntry(nil), s.GetRecentResult...), nil
}

func (s *SessionStore) Search(_ context.Context, query string, opts memory.SearchOpts) ([]types.TranscriptEntry, error) {
	s.record("Search", query, opts)
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	return append([]types.TranscriptEntry(nil), s.SearchResult...), nil
}

// Calls returns every recorded invocation in order.
func (s *SessionStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *SessionStore) record(method string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// NoteStore is an in-memory memory.NoteStore double: Put really stores, and
// SearchText matches by case-insensitive substring, so most tests need no
// scripting at all.
type NoteStore struct {
	mu    sync.Mutex
	notes map[string]memory.Note

	PutErr    error
	SearchErr error
}

var _ memory.NoteStore = (*NoteStore)(nil)

func (n *NoteStore) Put(_ context.Context, note memory.Note) error {
	if n.PutErr != nil {
		return n.PutErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notes == nil {
		n.notes = make(map[string]memory.Note)
	}
	n.notes[note.ID] = note
	return nil
}

func (n *NoteStore) SearchText(_ context.Context, query string, limit int) ([]memory.Note, error) {
	if n.SearchErr != nil {
		return nil, n.SearchErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []memory.Note
	for _, note := range n.notes {
		if strings.Contains(strings.ToLower(note.Text), strings.ToLower(query)) {
			out = append(out, note)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (n *NoteStore) SearchVector(_ context.Context, _ []float32, limit int) ([]memory.Note, error) {
	if n.SearchErr != nil {
		return nil, n.SearchErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []memory.Note
	for _, note := range n.notes {
		if note.Embedding == nil {
			continue
		}
		out = append(out, note)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len reports how many notes Put has stored.
func (n *NoteStore) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// Get returns the stored note by ID.
func (n *NoteStore) Get(id string) (memory.Note, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	note, ok := n.notes[id]
	return note, ok
}
