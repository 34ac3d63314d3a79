// Package mock is the tts.Provider test double: script the chunk sequence
// and error fields, then read the call records to assert what the caller
// synthesized.
package mock

import (
	"context"
	"sync"

	"github.com/Mai-with-u/amaidesu/pkg/provider/tts"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// SynthesizeStreamCall records one SynthesizeStream invocation.
type SynthesizeStreamCall struct {
	Ctx   context.Context
	Voice types.VoiceProfile
}

// Provider is a scriptable tts.Provider. The zero value synthesizes
// silence: its audio channel closes immediately.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks are emitted, in order, on the returned audio
	// channel; SynthesizeErr instead fails the call up front. The text
	// channel is drained in the background so callers never block on it.
	SynthesizeChunks [][]byte
	SynthesizeErr    error

	// ListVoicesResult and ListVoicesErr script ListVoices.
	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error

	// CloneVoiceResult and CloneVoiceErr script CloneVoice.
	CloneVoiceResult *types.VoiceProfile
	CloneVoiceErr    error

	// SynthesizeStreamCalls records invocations in order.
	SynthesizeStreamCalls []SynthesizeStreamCall
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	err := p.SynthesizeErr
	chunks := append([][]byte(nil), p.SynthesizeChunks...)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	// Drain text so a producer writing fragments never wedges.
	go func() {
		for range text {
		}
	}()

	out := make(chan []byte, len(chunks))
	for _, c := range chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.VoiceProfile(nil), p.ListVoicesResult...), p.ListVoicesErr
}

func (p *Provider) CloneVoice(context.Context, [][]byte) (*types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CloneVoiceResult, p.CloneVoiceErr
}
