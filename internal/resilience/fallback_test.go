package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	llmmock "github.com/Mai-with-u/amaidesu/pkg/provider/llm/mock"
	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	sttmock "github.com/Mai-with-u/amaidesu/pkg/provider/stt/mock"
	ttsmock "github.com/Mai-with-u/amaidesu/pkg/provider/tts/mock"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestGroupStopsAtFirstHealthyEntry(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("openai", "openai", FallbackConfig{})
	g.AddFallback("ollama", "ollama")

	var served string
	err := g.Execute(func(name string) error {
		served = name
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "openai" {
		t.Errorf("served by %q, want the primary", served)
	}
}

func TestGroupWalksChainOnFailure(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("openai", "openai", FallbackConfig{})
	g.AddFallback("ollama", "ollama")

	var attempts []string
	result, err := ExecuteWithResult(g, func(name string) (string, error) {
		attempts = append(attempts, name)
		if name == "openai" {
			return "", errTest
		}
		return "served by " + name, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "served by ollama" {
		t.Errorf("result = %q", result)
	}
	if len(attempts) != 2 {
		t.Errorf("attempts = %v, want both entries tried in order", attempts)
	}
}

func TestGroupAllFailedWrapsLastError(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("openai", "openai", FallbackConfig{})
	g.AddFallback("ollama", "ollama")

	err := g.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestGroupSkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	g.AddFallback("ollama", "ollama")

	// Trip the primary's breaker.
	g.Execute(func(name string) error {
		if name == "openai" {
			return errTest
		}
		return nil
	})

	var attempts []string
	err := g.Execute(func(name string) error {
		attempts = append(attempts, name)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "ollama" {
		t.Errorf("attempts = %v, the tripped primary should be skipped", attempts)
	}
}

func TestLLMFallbackCompletes(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errTest}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from the fallback"}}

	chain := NewLLMFallback(primary, "openai", FallbackConfig{})
	chain.AddFallback("ollama", secondary)

	resp, err := chain.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from the fallback" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 || len(secondary.CompleteCalls) != 1 {
		t.Errorf("calls = %d/%d, want both backends tried once", len(primary.CompleteCalls), len(secondary.CompleteCalls))
	}
}

func TestLLMFallbackCapabilitiesComeFromPrimary(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 123}}
	chain := NewLLMFallback(primary, "openai", FallbackConfig{})
	chain.AddFallback("ollama", &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 456}})

	if got := chain.Capabilities().ContextWindow; got != 123 {
		t.Errorf("ContextWindow = %d, capabilities must not fail over", got)
	}
}

func TestTTSFallbackSynthesizes(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errTest}
	secondary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("pcm")}}

	chain := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	chain.AddFallback("mock", secondary)

	text := make(chan string)
	close(text)
	audio, err := chain.SynthesizeStream(context.Background(), text, types.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	var chunks int
	for range audio {
		chunks++
	}
	if chunks != 1 {
		t.Errorf("chunks = %d, want the fallback's one", chunks)
	}
	if len(secondary.SynthesizeStreamCalls) != 1 {
		t.Errorf("fallback calls = %d, want 1", len(secondary.SynthesizeStreamCalls))
	}
}

func TestSTTFallbackStartsStream(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{StartStreamErr: errTest}
	secondary := &sttmock.Provider{}

	chain := NewSTTFallback(primary, "deepgram", FallbackConfig{})
	chain.AddFallback("whisper", secondary)

	handle, err := chain.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if handle == nil {
		t.Fatal("nil session handle")
	}
	if len(primary.StartStreamCalls) != 1 || len(secondary.StartStreamCalls) != 1 {
		t.Errorf("calls = %d/%d, want both backends tried", len(primary.StartStreamCalls), len(secondary.StartStreamCalls))
	}
}

func TestSTTFallbackAllDown(t *testing.T) {
	t.Parallel()
	chain := NewSTTFallback(&sttmock.Provider{StartStreamErr: errTest}, "deepgram", FallbackConfig{})
	chain.AddFallback("whisper", &sttmock.Provider{StartStreamErr: errTest})

	if _, err := chain.StartStream(context.Background(), stt.StreamConfig{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}
