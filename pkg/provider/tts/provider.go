// Package tts is the text-to-speech contract for the audio output path. A
// Provider turns a stream of text fragments into a stream of raw PCM, so
// speech can start while upstream (an LLM, the subtitle pipeline) is still
// producing text.
//
// Implementations must be safe for concurrent use; synthesis requests may
// overlap.
package tts

import (
	"context"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Provider is one synthesis backend.
type Provider interface {
	// SynthesizeStream consumes text fragments and returns the channel of
	// synthesized PCM chunks, closed by the implementation when the text
	// channel closes and the tail of the audio has been delivered, or
	// when ctx ends. Callers must drain it. A non-nil error means the
	// stream never started; mid-synthesis failures surface as an early
	// close, with ctx.Err() distinguishing cancellation.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the backend's current voice catalogue.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// CloneVoice trains a new voice from audio samples where the backend
	// offers it. Expensive; never call it on the render path. Backends
	// without cloning return an error.
	CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error)
}
