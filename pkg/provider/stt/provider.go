// Package stt is the speech-to-text contract for the voice input path. A
// Provider opens streaming [SessionHandle]s: the caller pushes raw PCM in,
// and two transcript channels come back out — low-latency partials for
// responsiveness, and finals that are safe to log and hand to the decision
// layer.
//
// Implementations must be safe for concurrent use; multiple sessions may
// be open at once.
package stt

import (
	"context"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// StreamConfig describes one session's audio format and recognition
// hints. Zero-valued fields fall back to the provider's own defaults.
type StreamConfig struct {
	// SampleRate is the PCM rate in Hz (16000 is the usual STT input;
	// 48000 is what the Discord/Opus capture path produces).
	SampleRate int

	// Channels is the channel count; most recognisers want mono and may
	// downmix internally.
	Channels int

	// Language is the BCP-47 recognition language; empty asks the backend
	// to auto-detect where supported.
	Language string

	// Keywords boosts recognition of channel-specific vocabulary (the
	// agent's name, emote names). See types.KeywordBoost.
	Keywords []types.KeywordBoost
}

// SessionHandle is one open transcription stream. Callers must Close it —
// sessions own goroutines and connections — and a closed session's
// transcript channels are closed by the implementation. All methods are
// safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one chunk of raw PCM matching the session's
	// StreamConfig. Fails after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim guesses, suitable for activity indicators
	// but not for the session log.
	Partials() <-chan types.Transcript

	// Finals emits committed recognition results.
	Finals() <-chan types.Transcript

	// SetKeywords swaps the boost list mid-session where the backend
	// supports it; others return a wrapped not-supported error and stay
	// usable.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close flushes pending audio, releases resources, and closes both
	// transcript channels. Idempotent.
	Close() error
}

// Provider opens transcription sessions against one STT backend.
type Provider interface {
	// StartStream opens a session ready to accept audio, or fails if the
	// backend is unreachable or cfg unsupported. The caller owns the
	// handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
