// Package postgres backs pkg/memory with PostgreSQL: the transcript log in
// a plain table searched via full-text indexes, and agent notes in a
// pgvector-equipped table so semantic recall and keyword recall share one
// database.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgvectorpgx "github.com/pgvector/pgvector-go/pgx"

	"github.com/Mai-with-u/amaidesu/pkg/memory"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// defaultSearchLimit caps transcript searches that pass no explicit limit.
const defaultSearchLimit = 50

// schema is applied on every connect; all statements are idempotent. The
// vector column's dimension is fixed at store creation, so changing
// embedding models needs a migration, not a config edit.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcript_log (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    speaker_id   TEXT         NOT NULL,
    speaker_name TEXT         NOT NULL DEFAULT '',
    text         TEXT         NOT NULL,
    raw_text     TEXT         NOT NULL DEFAULT '',
    is_agent     BOOLEAN      NOT NULL DEFAULT FALSE,
    agent_id     TEXT         NOT NULL DEFAULT '',
    spoken_at    TIMESTAMPTZ  NOT NULL,
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS transcript_log_session_time
    ON transcript_log (session_id, spoken_at);
CREATE INDEX IF NOT EXISTS transcript_log_text_fts
    ON transcript_log USING GIN (to_tsvector('simple', text));

CREATE TABLE IF NOT EXISTS agent_notes (
    id         TEXT         PRIMARY KEY,
    session_id TEXT         NOT NULL DEFAULT '',
    author     TEXT         NOT NULL DEFAULT '',
    text       TEXT         NOT NULL,
    embedding  vector(%d),
    created_at TIMESTAMPTZ  NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_notes_text_fts
    ON agent_notes USING GIN (to_tsvector('simple', text));
`

// Store owns the connection pool and hands out the two store views.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, registers the pgvector codec on every connection,
// and applies the schema with embeddingDims as the notes vector dimension.
func New(ctx context.Context, dsn string, embeddingDims int) (*Store, error) {
	if embeddingDims <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimension must be positive, got %d", embeddingDims)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvectorpgx.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(schema, embeddingDims)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: applying schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Sessions returns the transcript-log view of this store.
func (s *Store) Sessions() memory.SessionStore { return sessionStore{s.pool} }

// Notes returns the agent-notes view of this store.
func (s *Store) Notes() memory.NoteStore { return noteStore{s.pool} }

type sessionStore struct {
	pool *pgxpool.Pool
}

func (s sessionStore) WriteEntry(ctx context.Context, sessionID string, entry types.TranscriptEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_log
		    (session_id, speaker_id, speaker_name, text, raw_text, is_agent, agent_id, spoken_at, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sessionID, entry.SpeakerID, entry.SpeakerName, entry.Text, entry.RawText,
		entry.IsAgent, entry.AgentID, entry.Timestamp, entry.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: writing transcript entry: %w", err)
	}
	return nil
}

func (s sessionStore) GetRecent(ctx context.Context, sessionID string, window time.Duration) ([]types.TranscriptEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT speaker_id, speaker_name, text, raw_text, is_agent, agent_id, spoken_at, duration_ns
		FROM   transcript_log
		WHERE  session_id = $1 AND spoken_at > $2
		ORDER  BY spoken_at`,
		sessionID, time.Now().Add(-window),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: reading recent transcript: %w", err)
	}
	return scanEntries(rows)
}

func (s sessionStore) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]types.TranscriptEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sql := `
		SELECT speaker_id, speaker_name, text, raw_text, is_agent, agent_id, spoken_at, duration_ns
		FROM   transcript_log
		WHERE  to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)`
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.SessionID != "" {
		sql += " AND session_id = " + next(opts.SessionID)
	}
	if opts.SpeakerID != "" {
		sql += " AND speaker_id = " + next(opts.SpeakerID)
	}
	if !opts.After.IsZero() {
		sql += " AND spoken_at > " + next(opts.After)
	}
	if !opts.Before.IsZero() {
		sql += " AND spoken_at < " + next(opts.Before)
	}
	sql += " ORDER BY spoken_at LIMIT " + next(limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: searching transcript: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]types.TranscriptEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TranscriptEntry, error) {
		var (
			e  types.TranscriptEntry
			ns int64
		)
		if err := row.Scan(&e.SpeakerID, &e.SpeakerName, &e.Text, &e.RawText, &e.IsAgent, &e.AgentID, &e.Timestamp, &ns); err != nil {
			return e, err
		}
		e.Duration = time.Duration(ns)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning transcript rows: %w", err)
	}
	if entries == nil {
		entries = []types.TranscriptEntry{}
	}
	return entries, nil
}

type noteStore struct {
	pool *pgxpool.Pool
}

func (n noteStore) Put(ctx context.Context, note memory.Note) error {
	if note.ID == "" {
		return fmt.Errorf("postgres: note id must not be empty")
	}
	createdAt := note.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var embedding any
	if note.Embedding != nil {
		embedding = pgvector.NewVector(note.Embedding)
	}
	_, err := n.pool.Exec(ctx, `
		INSERT INTO agent_notes (id, session_id, author, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    session_id = EXCLUDED.session_id,
		    author     = EXCLUDED.author,
		    text       = EXCLUDED.text,
		    embedding  = EXCLUDED.embedding`,
		note.ID, note.SessionID, note.Author, note.Text, embedding, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: storing note %q: %w", note.ID, err)
	}
	return nil
}

func (n noteStore) SearchText(ctx context.Context, query string, limit int) ([]memory.Note, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := n.pool.Query(ctx, `
		SELECT id, session_id, author, text, created_at,
		       ts_rank(to_tsvector('simple', text), plainto_tsquery('simple', $1)) AS rank
		FROM   agent_notes
		WHERE  to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)
		ORDER  BY rank DESC
		LIMIT  $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: searching notes: %w", err)
	}
	return scanNotes(rows, true)
}

func (n noteStore) SearchVector(ctx context.Context, embedding []float32, limit int) ([]memory.Note, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := n.pool.Query(ctx, `
		SELECT id, session_id, author, text, created_at
		FROM   agent_notes
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector note search: %w", err)
	}
	return scanNotes(rows, false)
}

func scanNotes(rows pgx.Rows, withRank bool) ([]memory.Note, error) {
	notes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Note, error) {
		var (
			note memory.Note
			rank float64
		)
		dest := []any{&note.ID, &note.SessionID, &note.Author, &note.Text, &note.CreatedAt}
		if withRank {
			dest = append(dest, &rank)
		}
		return note, row.Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning note rows: %w", err)
	}
	if notes == nil {
		notes = []memory.Note{}
	}
	return notes, nil
}
