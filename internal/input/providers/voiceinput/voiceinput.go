// Package voiceinput implements an InputProvider that captures raw PCM audio
// from a local source (a capture FIFO or any io.Reader), streams it through a
// speech-to-text backend, and yields one NormalizedMessage per final
// transcript. The streamer's own microphone becomes just another chat-like
// input source for the decision layer.
package voiceinput

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/internal/resilience"
	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/provider/stt/deepgram"
	"github.com/Mai-with-u/amaidesu/pkg/provider/stt/whisper"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "voice_input"

// Config controls the voice input provider.
type Config struct {
	// Backend selects the STT backend: "whisper" (local whisper.cpp server)
	// or "deepgram" (streaming API).
	Backend string

	// FallbackBackend, when non-empty, wraps the primary backend in a
	// failover group so a dead primary degrades to the fallback instead of
	// silencing the microphone.
	FallbackBackend string

	// DevicePath is the PCM capture source, typically a FIFO fed by the
	// host's audio capture tooling. Raw little-endian int16 PCM is expected.
	DevicePath string

	// ServerURL is the whisper.cpp server address (whisper backend only).
	ServerURL string

	// APIKeyEnv names the environment variable holding the Deepgram API key.
	APIKeyEnv string

	// Language is the BCP-47 recognition language; empty lets the backend
	// auto-detect.
	Language string

	SampleRate int
	Channels   int

	// FrameMs is how much captured audio is sent per SendAudio call.
	FrameMs int

	// Importance is assigned to every transcribed message.
	Importance float64

	// MinConfidence drops final transcripts the backend scored below this.
	// Zero keeps everything, including transcripts with no reported score.
	MinConfidence float64
}

func parseConfig(cfg map[string]any) Config {
	c := Config{
		Backend:    "whisper",
		ServerURL:  "http://localhost:9000",
		SampleRate: 16000,
		Channels:   1,
		FrameMs:    100,
		Importance: 0.7,
	}
	if v, ok := cfg["backend"].(string); ok && v != "" {
		c.Backend = v
	}
	if v, ok := cfg["fallback_backend"].(string); ok {
		c.FallbackBackend = v
	}
	if v, ok := cfg["device_path"].(string); ok {
		c.DevicePath = v
	}
	if v, ok := cfg["server_url"].(string); ok && v != "" {
		c.ServerURL = v
	}
	if v, ok := cfg["api_key_env"].(string); ok {
		c.APIKeyEnv = v
	}
	if v, ok := cfg["language"].(string); ok {
		c.Language = v
	}
	if v, ok := cfg["sample_rate"].(int64); ok && v > 0 {
		c.SampleRate = int(v)
	}
	if v, ok := cfg["channels"].(int64); ok && v > 0 {
		c.Channels = int(v)
	}
	if v, ok := cfg["frame_ms"].(int64); ok && v > 0 {
		c.FrameMs = int(v)
	}
	if v, ok := cfg["importance"].(float64); ok && v > 0 {
		c.Importance = v
	}
	if v, ok := cfg["min_confidence"].(float64); ok && v > 0 {
		c.MinConfidence = v
	}
	return c
}

func buildBackend(name string, c Config) (stt.Provider, error) {
	switch name {
	case "whisper":
		var opts []whisper.Option
		if c.Language != "" {
			opts = append(opts, whisper.WithLanguage(c.Language))
		}
		return whisper.New(c.ServerURL, opts...)
	case "deepgram":
		key := os.Getenv(c.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("voiceinput: deepgram backend needs api_key_env (%q is unset)", c.APIKeyEnv)
		}
		var opts []deepgram.Option
		if c.Language != "" {
			opts = append(opts, deepgram.WithLanguage(c.Language))
		}
		return deepgram.New(key, opts...)
	default:
		return nil, fmt.Errorf("voiceinput: unknown stt backend %q", name)
	}
}

// Provider captures PCM from a reader, transcribes it, and yields one
// NormalizedMessage per accepted final transcript.
type Provider struct {
	cfg Config
	stt stt.Provider

	mu      sync.Mutex
	source  io.ReadCloser
	session stt.SessionHandle
	stopped bool
}

// New constructs the voice input provider from its merged config table.
func New(cfg map[string]any, _ provider.Context) (provider.InputProvider, error) {
	c := parseConfig(cfg)

	primary, err := buildBackend(c.Backend, c)
	if err != nil {
		return nil, err
	}
	backend := primary
	if c.FallbackBackend != "" && c.FallbackBackend != c.Backend {
		fb, err := buildBackend(c.FallbackBackend, c)
		if err != nil {
			return nil, fmt.Errorf("voiceinput: fallback backend: %w", err)
		}
		group := resilience.NewSTTFallback(primary, c.Backend, resilience.FallbackConfig{})
		group.AddFallback(c.FallbackBackend, fb)
		backend = group
	}

	return &Provider{cfg: c, stt: backend}, nil
}

// NewWithSource builds a Provider that transcribes PCM read from src through
// backend, for tests and programmatic embedding.
func NewWithSource(src io.ReadCloser, backend stt.Provider, cfg Config) *Provider {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.FrameMs == 0 {
		cfg.FrameMs = 100
	}
	if cfg.Importance == 0 {
		cfg.Importance = 0.7
	}
	return &Provider{cfg: cfg, stt: backend, source: src}
}

// Start opens the capture device. A source injected via NewWithSource wins
// over DevicePath.
func (p *Provider) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		return nil
	}
	if p.cfg.DevicePath == "" {
		return fmt.Errorf("voiceinput: device_path is required")
	}
	f, err := os.Open(p.cfg.DevicePath)
	if err != nil {
		return fmt.Errorf("voiceinput: open capture device: %w", err)
	}
	p.source = f
	return nil
}

// Stream opens one STT session for the provider's lifetime, pumps captured
// PCM frames into it, and converts each accepted final transcript into a
// NormalizedMessage.
func (p *Provider) Stream(ctx context.Context) (<-chan types.NormalizedMessage, <-chan error) {
	out := make(chan types.NormalizedMessage)
	errs := make(chan error, 1)

	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	session, err := p.stt.StartStream(ctx, stt.StreamConfig{
		SampleRate: p.cfg.SampleRate,
		Channels:   p.cfg.Channels,
		Language:   p.cfg.Language,
	})
	if err != nil {
		errs <- fmt.Errorf("voiceinput: start stt session: %w", err)
		close(out)
		close(errs)
		return out, errs
	}
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	// Capture pump: fixed-size PCM frames from the source into the session.
	// Closing the session on exit is what ends the finals loop below.
	go func() {
		defer func() {
			if err := session.Close(); err != nil {
				select {
				case errs <- err:
				default:
				}
			}
		}()

		frameBytes := p.cfg.SampleRate * p.cfg.Channels * 2 * p.cfg.FrameMs / 1000
		buf := make([]byte, frameBytes)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := io.ReadFull(source, buf)
			if n > 0 {
				if sendErr := session.SendAudio(buf[:n]); sendErr != nil {
					select {
					case errs <- fmt.Errorf("voiceinput: send audio: %w", sendErr):
					default:
					}
					return
				}
			}
			if err != nil {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					select {
					case errs <- err:
					default:
					}
				}
				return
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(errs)
		for t := range session.Finals() {
			if t.Text == "" {
				continue
			}
			if p.cfg.MinConfidence > 0 && t.Confidence > 0 && t.Confidence < p.cfg.MinConfidence {
				continue
			}
			msg := types.NormalizedMessage{
				Text:       t.Text,
				Source:     Name,
				DataType:   types.DataTypeText,
				Importance: p.cfg.Importance,
				Timestamp:  time.Now(),
				Metadata:   map[string]any{"confidence": t.Confidence},
			}
			if t.SpeakerID != "" {
				msg.Metadata["speaker_id"] = t.SpeakerID
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// Stop closes the capture source, which unblocks the capture pump and in
// turn closes the STT session and the message channel.
func (p *Provider) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()
	return p.Cleanup()
}

// Cleanup releases the capture source and the STT session.
func (p *Provider) Cleanup() error {
	p.mu.Lock()
	source := p.source
	session := p.session
	p.source = nil
	p.session = nil
	p.mu.Unlock()

	var firstErr error
	if source != nil {
		if err := source.Close(); err != nil {
			firstErr = err
		}
	}
	if session != nil {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "input", Name: Name, Source: "internal/input/providers/voiceinput"}
}
