// Package memory defines the conversation-memory contracts behind the
// agent: a time-ordered session transcript log the decision layer reads
// recent context from, and a durable notes store the agent can write
// lasting facts into and recall later, by keyword or by embedding.
//
// Implementations must be safe for concurrent use. The process-local
// default lives in internal/memory; pkg/memory/postgres provides the
// durable backend.
package memory

import (
	"context"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// SearchOpts narrows a transcript search. Zero-valued fields are ignored;
// set fields combine as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to one session; empty searches all.
	SessionID string

	// SpeakerID restricts results to one speaker; empty matches everyone.
	SpeakerID string

	// After and Before bound the match window (both exclusive); a zero
	// time disables that bound.
	After  time.Time
	Before time.Time

	// Limit caps the result count; zero lets the backend choose.
	Limit int
}

// SessionStore is the transcript log: append-only per session, read back
// by recency window or keyword search.
type SessionStore interface {
	// WriteEntry appends entry to sessionID's log.
	WriteEntry(ctx context.Context, sessionID string, entry types.TranscriptEntry) error

	// GetRecent returns sessionID's entries newer than now-window, oldest
	// first.
	GetRecent(ctx context.Context, sessionID string, window time.Duration) ([]types.TranscriptEntry, error)

	// Search returns entries whose text matches query, filtered by opts,
	// oldest first.
	Search(ctx context.Context, query string, opts SearchOpts) ([]types.TranscriptEntry, error)
}

// Note is one durable fact the agent chose to keep: a viewer's preference,
// a running gag, a promise made on stream. Embedding is optional; notes
// without one are still reachable through keyword search.
type Note struct {
	// ID is the caller-assigned unique identifier; Put with an existing
	// ID overwrites that note.
	ID string

	// SessionID records which session the note was taken in, if any.
	SessionID string

	// Author is who the note is about or from (a viewer ID, or the agent
	// name for self-notes).
	Author string

	// Text is the note content.
	Text string

	// Embedding is an optional pre-computed vector for semantic recall.
	// Its dimension must match the store's configuration.
	Embedding []float32

	CreatedAt time.Time
}

// NoteStore is the agent's long-term memory over Notes.
type NoteStore interface {
	// Put stores note, overwriting any note with the same ID.
	Put(ctx context.Context, note Note) error

	// SearchText returns up to limit notes whose text matches query,
	// most relevant first.
	SearchText(ctx context.Context, query string, limit int) ([]Note, error)

	// SearchVector returns up to limit notes closest to embedding, best
	// match first. Notes stored without an embedding are never returned.
	SearchVector(ctx context.Context, embedding []float32, limit int) ([]Note, error)
}
