package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/provider/tts"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// ErrAllFailed is returned when no entry in a [FallbackGroup] could serve
// the call — every backend either failed or sat behind an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-entry circuit breaker a
// [FallbackGroup] creates for each registered provider.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// FallbackGroup chains a primary and zero or more fallbacks of the same
// provider type, each behind its own circuit breaker. Calls walk the chain
// in registration order and stop at the first healthy entry.
//
// Registration (NewFallbackGroup, AddFallback) happens during wiring;
// Execute is safe for concurrent use afterwards.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	names   []string
	values  []T
	breaker []*CircuitBreaker
}

// NewFallbackGroup starts a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends one more provider to the chain.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	breakerCfg := g.cfg.CircuitBreaker
	breakerCfg.Name = name
	g.names = append(g.names, name)
	g.values = append(g.values, value)
	g.breaker = append(g.breaker, NewCircuitBreaker(breakerCfg))
}

// Execute walks the chain until fn succeeds against some entry. Entries
// with open breakers are skipped; if nothing serves the call, the last
// error comes back wrapped in [ErrAllFailed].
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. It is a package-level function because methods cannot introduce
// their own type parameters.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range g.values {
		var result R
		err := g.breaker[i].Execute(func() error {
			var callErr error
			result, callErr = fn(g.values[i])
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider behind open breaker", "provider", g.names[i])
		} else {
			slog.Warn("provider failed, trying next in chain", "provider", g.names[i], "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// first returns the primary entry, for static delegation (capabilities)
// that should not trip breakers.
func (g *FallbackGroup[T]) first() (T, bool) {
	if len(g.values) == 0 {
		var zero T
		return zero, false
	}
	return g.values[0], true
}

// LLMFallback chains llm.Provider backends. It implements llm.Provider
// itself, so a wrapped chain drops in wherever a single backend would.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback starts an LLM chain with primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another LLM backend to the chain.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete runs the completion against the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream against the first healthy backend.
// Failover covers only stream establishment; a stream that dies mid-flight
// is the caller's problem, the same contract as a single backend.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens estimates against the first healthy backend.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary's capabilities; static metadata does
// not fail over.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	if primary, ok := f.group.first(); ok {
		return primary.Capabilities()
	}
	return types.ModelCapabilities{}
}

// TTSFallback chains tts.Provider backends; it implements tts.Provider.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback starts a TTS chain with primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another TTS backend to the chain.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream starts synthesis on the first healthy backend; only
// stream establishment fails over.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices lists from the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// CloneVoice clones on the first healthy backend.
func (f *TTSFallback) CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*types.VoiceProfile, error) {
		return p.CloneVoice(ctx, samples)
	})
}

// STTFallback chains stt.Provider backends; it implements stt.Provider.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback starts an STT chain with primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another STT backend to the chain.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a session on the first healthy backend; an
// established session does not fail over.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
