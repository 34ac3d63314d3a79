// Package whisper backs stt.Provider with whisper.cpp, either through a
// running whisper-server's REST endpoint ([New]) or in-process through the
// CGO bindings ([NewNative], which needs libwhisper.a and whisper.h at link
// time).
//
// whisper.cpp transcribes batches, not streams, so both variants share one
// segmenter: incoming PCM is energy-gated, buffered while someone is
// speaking, and handed to the engine once enough trailing silence (or too
// much audio) accumulates. Each utterance produces one partial and one
// final carrying the same text — real low-latency partials are not
// possible with a batch engine, but the pair keeps the channel contract
// uniform with streaming backends.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
)

// ErrNoKeywordBoost is wrapped by SetKeywords: whisper.cpp has no
// keyword-boosting API, so the hint is refused and the session stays
// usable.
var ErrNoKeywordBoost = errors.New("whisper.cpp does not support keyword boosting")

// settings are the knobs shared by both provider variants.
type settings struct {
	language     string
	sampleRate   int
	silenceMs    int
	maxUtterance time.Duration
}

func defaultSettings() settings {
	return settings{
		language:     "en",
		sampleRate:   16000,
		silenceMs:    500,
		maxUtterance: 10 * time.Second,
	}
}

// Option configures either provider variant.
type Option func(*settings)

// WithLanguage sets the transcription language code (e.g. "en", "ja").
func WithLanguage(lang string) Option {
	return func(s *settings) { s.language = lang }
}

// WithSampleRate declares the PCM sample rate SendAudio will deliver.
func WithSampleRate(rate int) Option {
	return func(s *settings) { s.sampleRate = rate }
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
// Lower is snappier but risks splitting sentences.
func WithSilenceThresholdMs(ms int) Option {
	return func(s *settings) { s.silenceMs = ms }
}

// WithMaxUtterance bounds how much audio buffers before a forced flush,
// capping memory during continuous speech.
func WithMaxUtterance(d time.Duration) Option {
	return func(s *settings) { s.maxUtterance = d }
}

// engine is the batch-transcription backend behind a session: PCM in,
// text out.
type engine interface {
	transcribe(ctx context.Context, pcm []byte, sampleRate, channels int, language string) (string, error)
}

// Provider talks to a whisper-server process over HTTP.
type Provider struct {
	cfg    settings
	engine *serverEngine
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider posting utterances to the whisper-server at
// serverURL (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{
		cfg: cfg,
		engine: &serverEngine{
			url:    serverURL + "/inference",
			client: &http.Client{Timeout: 30 * time.Second},
		},
	}, nil
}

// StartStream implements stt.Provider. No network traffic happens until
// the first utterance flushes.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return startSession(ctx, p.engine, p.cfg, cfg)
}

// NativeProvider runs whisper.cpp in-process via the CGO bindings. The
// model loads once and is shared by every session; each inference gets its
// own whisper context, which is what the bindings require for concurrency.
type NativeProvider struct {
	cfg    settings
	engine *nativeEngine
}

var _ stt.Provider = (*NativeProvider)(nil)

// NewNative loads the whisper.cpp model at modelPath. Callers own the
// provider and must Close it to release the model.
func NewNative(modelPath string, opts ...Option) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: loading model %q: %w", modelPath, err)
	}
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	return &NativeProvider{cfg: cfg, engine: &nativeEngine{model: model}}, nil
}

// StartStream implements stt.Provider.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return startSession(ctx, p.engine, p.cfg, cfg)
}

// Close releases the shared model. Sessions started earlier must already
// be closed.
func (p *NativeProvider) Close() error {
	return p.engine.model.Close()
}

// serverEngine POSTs WAV-wrapped utterances to whisper-server's /inference
// endpoint as multipart form data.
type serverEngine struct {
	url    string
	client *http.Client
}

func (e *serverEngine) transcribe(ctx context.Context, pcm []byte, sampleRate, channels int, language string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	file, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: building form: %w", err)
	}
	if _, err := file.Write(encodeWAV(pcm, sampleRate, channels)); err != nil {
		return "", fmt.Errorf("whisper: writing wav: %w", err)
	}
	if language != "" {
		if err := form.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: writing language: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("whisper: closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: building request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: reading response: %w", err)
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("whisper: decoding response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

// nativeEngine runs inference through the CGO bindings.
type nativeEngine struct {
	model whisperlib.Model
}

func (e *nativeEngine) transcribe(_ context.Context, pcm []byte, _, channels int, language string) (string, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if language != "" {
		// Best effort; the model falls back to its own default.
		_ = wctx.SetLanguage(language)
	}
	if err := wctx.Process(pcmToFloat32Mono(pcm, channels), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: processing audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: reading segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
