package similarity

import (
	"context"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func send(p *Pipeline, text, userID string) *types.NormalizedMessage {
	msg := types.NormalizedMessage{
		Text:     text,
		Source:   "test",
		DataType: types.DataTypeText,
		Metadata: map[string]any{"user_id": userID},
	}
	result, _ := p.Process(context.Background(), msg)
	return result
}

func TestPipeline_DropsDuplicatesWithinWindow(t *testing.T) {
	p := New(Config{SimilarityThreshold: 0.85, TimeWindow: 5 * time.Second, MinTextLength: 3, CrossUserFilter: true, Enabled: true})

	if r := send(p, "666", "u1"); r == nil {
		t.Fatal("first message should pass")
	}
	if r := send(p, "666", "u1"); r != nil {
		t.Fatal("identical message within window should be dropped")
	}
	if r := send(p, "6666", "u1"); r != nil {
		t.Fatal("\"6666\" should be dropped: SequenceMatcher ratio vs \"666\" is ~0.857 >= 0.85")
	}

	if got := p.Stats().DroppedCount; got != 2 {
		t.Errorf("DroppedCount = %d, want 2", got)
	}
}

func TestPipeline_PassesAfterWindowExpires(t *testing.T) {
	p := New(Config{SimilarityThreshold: 0.85, TimeWindow: 50 * time.Millisecond, MinTextLength: 3, CrossUserFilter: true, Enabled: true})

	send(p, "hello world", "u1")
	time.Sleep(80 * time.Millisecond)
	if r := send(p, "hello world", "u1"); r == nil {
		t.Fatal("message should pass once the time window has elapsed")
	}
}

func TestPipeline_ShortTextPassesThrough(t *testing.T) {
	p := New(Config{SimilarityThreshold: 0.85, TimeWindow: time.Minute, MinTextLength: 3, Enabled: true})
	send(p, "hi", "u1")
	if r := send(p, "hi", "u1"); r == nil {
		t.Fatal("text shorter than MinTextLength must not be filtered")
	}
}

func TestContiguousMatchRatio(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"666", "666", 1.0, 1.0},
		{"666", "6666", 0.85, 0.86},
		{"abc", "xyz", 0, 0.2},
	}
	for _, c := range cases {
		got := contiguousMatchRatio(c.a, c.b)
		if got < c.min-0.01 || got > c.max+0.01 {
			t.Errorf("contiguousMatchRatio(%q,%q) = %v, want in [%v,%v]", c.a, c.b, got, c.min, c.max)
		}
	}
}

func TestPipeline_ImplementsInterface(t *testing.T) {
	var _ input.Pipeline = New(Config{})
}
