// Package memorytool exposes the agent's conversation memory to the
// decision provider's LLM as MCP tools: transcript search over the session
// log, plus read and write access to the durable notes store, so the model
// can both recall and deliberately remember things about its viewers.
//
// Three tools are exported via [NewTools]:
//   - "search_transcript" — keyword search over past session transcripts.
//   - "recall_notes"      — keyword recall from the agent's saved notes.
//   - "save_note"         — write one durable note.
//
// All handlers are safe for concurrent use.
package memorytool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/mcp/tools"
	"github.com/Mai-with-u/amaidesu/pkg/memory"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// defaultLimit caps results for search tools that pass no explicit limit.
const defaultLimit = 10

type searchTranscriptArgs struct {
	// Query is matched against transcript entry text.
	Query string `json:"query"`

	// SessionID restricts the search to one session; empty searches all.
	SessionID string `json:"session_id,omitempty"`

	// Limit caps the result count (default 10).
	Limit int `json:"limit,omitempty"`
}

type recallNotesArgs struct {
	// Query is matched against saved note text.
	Query string `json:"query"`

	// Limit caps the result count (default 10).
	Limit int `json:"limit,omitempty"`
}

type saveNoteArgs struct {
	// ID names the note; saving the same ID again overwrites it. Derived
	// from the text when empty.
	ID string `json:"id,omitempty"`

	// Author is who the note concerns (a viewer ID, or the agent itself).
	Author string `json:"author,omitempty"`

	// Text is the fact to remember.
	Text string `json:"text"`
}

func searchTranscript(sessions memory.SessionStore) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a searchTranscriptArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("memorytool: search_transcript: parsing arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("memorytool: search_transcript: query must not be empty")
		}
		limit := a.Limit
		if limit <= 0 {
			limit = defaultLimit
		}

		entries, err := sessions.Search(ctx, a.Query, memory.SearchOpts{
			SessionID: a.SessionID,
			Limit:     limit,
		})
		if err != nil {
			return "", fmt.Errorf("memorytool: search_transcript: %w", err)
		}
		return encode(entries)
	}
}

func recallNotes(notes memory.NoteStore) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a recallNotesArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("memorytool: recall_notes: parsing arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("memorytool: recall_notes: query must not be empty")
		}
		limit := a.Limit
		if limit <= 0 {
			limit = defaultLimit
		}

		found, err := notes.SearchText(ctx, a.Query, limit)
		if err != nil {
			return "", fmt.Errorf("memorytool: recall_notes: %w", err)
		}
		return encode(found)
	}
}

func saveNote(notes memory.NoteStore) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a saveNoteArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("memorytool: save_note: parsing arguments: %w", err)
		}
		if a.Text == "" {
			return "", fmt.Errorf("memorytool: save_note: text must not be empty")
		}
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("note-%d", time.Now().UnixNano())
		}

		note := memory.Note{ID: id, Author: a.Author, Text: a.Text}
		if err := notes.Put(ctx, note); err != nil {
			return "", fmt.Errorf("memorytool: save_note: %w", err)
		}
		return encode(map[string]string{"id": id, "status": "saved"})
	}
}

func encode(v any) (string, error) {
	res, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("memorytool: encoding result: %w", err)
	}
	return string(res), nil
}

// NewTools wires the memory tools against the given stores. Both must be
// non-nil.
func NewTools(sessions memory.SessionStore, notes memory.NoteStore) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "search_transcript",
				Description: "Search past session transcripts by keyword. Returns matching transcript entries oldest first. Restrict to one session with session_id.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Keywords matched against transcript text.",
						},
						"session_id": map[string]any{
							"type":        "string",
							"description": "Restrict to this session. Omit to search all sessions.",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum entries to return (default 10).",
							"minimum":     1,
							"maximum":     100,
						},
					},
					"required": []string{"query"},
				},
				EstimatedDurationMs: 100,
				MaxDurationMs:       500,
				Idempotent:          true,
				CacheableSeconds:    30,
			},
			Handler:     searchTranscript(sessions),
			DeclaredP50: 100,
			DeclaredMax: 500,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "recall_notes",
				Description: "Recall saved notes by keyword. Notes are durable facts previously stored with save_note: viewer preferences, running jokes, promises made on stream.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Keywords matched against note text.",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum notes to return (default 10).",
							"minimum":     1,
							"maximum":     100,
						},
					},
					"required": []string{"query"},
				},
				EstimatedDurationMs: 80,
				MaxDurationMs:       400,
				Idempotent:          true,
				CacheableSeconds:    30,
			},
			Handler:     recallNotes(notes),
			DeclaredP50: 80,
			DeclaredMax: 400,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "save_note",
				Description: "Save one durable note worth remembering across streams. Use a stable id to update an existing note instead of creating a new one.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{
							"type":        "string",
							"description": "Stable note identifier. Omit to generate one.",
						},
						"author": map[string]any{
							"type":        "string",
							"description": "Who the note concerns, e.g. a viewer ID.",
						},
						"text": map[string]any{
							"type":        "string",
							"description": "The fact to remember.",
						},
					},
					"required": []string{"text"},
				},
				EstimatedDurationMs: 60,
				MaxDurationMs:       300,
				Idempotent:          false,
			},
			Handler:     saveNote(notes),
			DeclaredP50: 60,
			DeclaredMax: 300,
		},
	}
}
