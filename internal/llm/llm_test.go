package llm

import (
	"context"
	"errors"
	"testing"

	llmpkg "github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	llmmock "github.com/Mai-with-u/amaidesu/pkg/provider/llm/mock"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestManager_HasClient(t *testing.T) {
	m := NewManager(nil)
	if m.HasClient("llm") {
		t.Fatal("expected no client registered")
	}
	m.Register("llm", &llmmock.Provider{})
	if !m.HasClient("llm") {
		t.Fatal("expected client to be registered")
	}
}

func TestManager_Chat(t *testing.T) {
	backend := &llmmock.Provider{CompleteResponse: &llmpkg.CompletionResponse{Content: "hi there"}}
	m := NewManager(nil)
	m.Register("llm", backend)

	out, err := m.Chat(context.Background(), "llm", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hi there" {
		t.Fatalf("got %q, want %q", out, "hi there")
	}
	if len(backend.CompleteCalls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(backend.CompleteCalls))
	}
	if backend.CompleteCalls[0].Req.Messages[0].Content != "hello" {
		t.Fatalf("unexpected request: %+v", backend.CompleteCalls[0].Req)
	}
}

func TestManager_Chat_UnknownClient(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Chat(context.Background(), "missing", "hi"); !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("expected ErrUnknownClient, got %v", err)
	}
}

func TestManager_ChatStructured_RetriesOnFailure(t *testing.T) {
	backend := &llmmock.Provider{CompleteErr: errors.New("transient")}
	m := NewManager(nil)
	m.Register("llm", backend)

	_, err := m.ChatStructured(context.Background(), "llm", ChatRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
		Retry:    RetryConfig{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1},
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(backend.CompleteCalls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(backend.CompleteCalls))
	}
}

func TestManager_StreamChat(t *testing.T) {
	backend := &llmmock.Provider{StreamChunks: []llmpkg.Chunk{{Text: "a"}, {Text: "b", FinishReason: "stop"}}}
	m := NewManager(nil)
	m.Register("llm", backend)

	ch, err := m.StreamChat(context.Background(), "llm", ChatRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 || chunks[1].FinishReason != "stop" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestManager_Vision_RequiresSupport(t *testing.T) {
	backend := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{SupportsVision: false}}
	m := NewManager(nil)
	m.Register("vlm", backend)

	_, err := m.Vision(context.Background(), "vlm", VisionRequest{Images: [][]byte{{0x1}}})
	if err == nil {
		t.Fatal("expected error for vision-unsupported backend")
	}
}
