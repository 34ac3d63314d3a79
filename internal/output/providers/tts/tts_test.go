package tts

import (
	"context"
	"testing"

	"github.com/Mai-with-u/amaidesu/internal/audiostream"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

type recordingStream struct {
	started []types.AudioMetadata
	ended   []types.AudioMetadata
	chunks  []types.AudioChunk
}

func (r *recordingStream) NotifyStart(meta types.AudioMetadata) { r.started = append(r.started, meta) }
func (r *recordingStream) NotifyEnd(meta types.AudioMetadata)   { r.ended = append(r.ended, meta) }
func (r *recordingStream) Publish(_ context.Context, chunk types.AudioChunk) audiostream.PublishResult {
	r.chunks = append(r.chunks, chunk)
	return audiostream.PublishResult{SuccessCount: 1, Errors: map[string]error{}}
}

func (r *recordingStream) Subscribe(string, func(types.AudioMetadata), func(types.AudioChunk), func(types.AudioMetadata), audiostream.SubscriptionConfig) (string, error) {
	return "", nil
}

func (r *recordingStream) Unsubscribe(string) {}

func TestProvider_ExecutePublishesChunksAndBrackets(t *testing.T) {
	stream := &recordingStream{}
	p, err := New(map[string]any{"backend": "mock"}, provider.Context{AudioStream: stream})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prov := p.(*Provider)
	prov.backend = &mockBackend{chunks: [][]byte{[]byte("0123456789abcdef")}}

	if err := prov.Execute(context.Background(), types.Intent{ResponseText: "hello there"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(stream.started) != 1 || stream.started[0].Text != "hello there" {
		t.Fatalf("expected one NotifyStart with the response text, got %+v", stream.started)
	}
	if len(stream.ended) != 1 {
		t.Fatalf("expected one NotifyEnd, got %d", len(stream.ended))
	}
	if len(stream.chunks) == 0 {
		t.Fatal("expected at least one published chunk")
	}
	var total int
	for i, c := range stream.chunks {
		total += len(c.Data)
		if c.Sequence != uint64(i+1) {
			t.Errorf("chunk %d: sequence = %d, want %d", i, c.Sequence, i+1)
		}
	}
	if total != len("0123456789abcdef") {
		t.Errorf("total published bytes = %d, want %d", total, len("0123456789abcdef"))
	}
}

func TestProvider_EmptyResponseTextSkipsSynthesis(t *testing.T) {
	stream := &recordingStream{}
	p, err := New(map[string]any{"backend": "mock"}, provider.Context{AudioStream: stream})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Execute(context.Background(), types.Intent{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(stream.started) != 0 || len(stream.chunks) != 0 {
		t.Fatal("expected no audio activity for an empty response")
	}
}

// mockBackend is a minimal tts.Provider stub that ignores the incoming text
// channel and emits a fixed set of chunks, avoiding a dependency on the
// shared pkg/provider/tts/mock package's call-recording semantics here.
type mockBackend struct {
	chunks [][]byte
}

func (m *mockBackend) SynthesizeStream(ctx context.Context, text <-chan string, _ types.VoiceProfile) (<-chan []byte, error) {
	ch := make(chan []byte, len(m.chunks))
	go func() {
		defer close(ch)
		for range text {
		}
		for _, c := range m.chunks {
			ch <- c
		}
	}()
	return ch, nil
}

func (m *mockBackend) ListVoices(context.Context) ([]types.VoiceProfile, error) { return nil, nil }

func (m *mockBackend) CloneVoice(context.Context, [][]byte) (*types.VoiceProfile, error) {
	return nil, nil
}
