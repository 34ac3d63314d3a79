package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/memory"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestInMemoryStore_WriteAndGetRecent(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()

	if err := store.WriteEntry(ctx, "s1", types.TranscriptEntry{Text: "hello", Timestamp: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := store.GetRecent(ctx, "s1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Text != "hello" {
		t.Fatalf("got %+v", out)
	}
}

func TestInMemoryStore_EvictsOldest(t *testing.T) {
	store := NewInMemoryStore(2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		if err := store.WriteEntry(ctx, "s1", types.TranscriptEntry{Text: text, Timestamp: time.Now()}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	out, err := store.GetRecent(ctx, "s1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0].Text != "b" || out[1].Text != "c" {
		t.Fatalf("got %+v", out)
	}
}

func TestInMemoryStore_GetRecent_RespectsWindow(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()

	store.sessions["s1"] = []types.TranscriptEntry{
		{Text: "old", Timestamp: time.Now().Add(-time.Hour)},
		{Text: "new", Timestamp: time.Now()},
	}

	out, err := store.GetRecent(ctx, "s1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Text != "new" {
		t.Fatalf("got %+v", out)
	}
}

func TestInMemoryStore_Search(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()
	store.sessions["s1"] = []types.TranscriptEntry{
		{SpeakerID: "u1", Text: "tell me about the speedrun", Timestamp: time.Now()},
		{SpeakerID: "u2", Text: "what's for dinner", Timestamp: time.Now()},
	}

	out, err := store.Search(ctx, "Speedrun", memory.SearchOpts{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].SpeakerID != "u1" {
		t.Fatalf("got %+v", out)
	}
}

func TestService_RecordAndRecent(t *testing.T) {
	svc := New(nil, nil)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "d"} {
		if err := svc.Record(ctx, "s1", types.TranscriptEntry{Text: text, Timestamp: time.Now()}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	out, err := svc.Recent(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0].Text != "c" || out[1].Text != "d" {
		t.Fatalf("got %+v", out)
	}
}

func TestService_Recent_ZeroOrNegativeReturnsEmpty(t *testing.T) {
	svc := New(nil, nil)
	out, err := svc.Recent(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %+v", out)
	}
}

func TestService_Recent_FewerThanRequested(t *testing.T) {
	svc := New(nil, nil)
	ctx := context.Background()
	if err := svc.Record(ctx, "s1", types.TranscriptEntry{Text: "only one", Timestamp: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := svc.Recent(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %+v", out)
	}
}

func TestService_UnknownSessionReturnsEmpty(t *testing.T) {
	svc := New(nil, nil)
	out, err := svc.Recent(context.Background(), "nonexistent", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %+v", out)
	}
}
