// Package elevenlabs backs tts.Provider with the ElevenLabs stream-input
// websocket API: text fragments go up as they arrive, base64 PCM frames
// come back, so speech can start before the full response text exists.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

const (
	streamInputFmt = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesURL      = "https://api.elevenlabs.io/v1/voices"
)

// Option adjusts a Provider.
type Option func(*Provider)

// WithModel selects the synthesis model (default "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat selects the audio format (default "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// Provider implements tts.Provider over the ElevenLabs API.
type Provider struct {
	apiKey string
	model  string
	format string
	http   *http.Client
}

// New returns a Provider authenticating with apiKey, which must be
// non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey: apiKey,
		model:  "eleven_flash_v2_5",
		format: "pcm_16000",
		http:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// streamMessage is one upstream websocket payload. The first message of a
// stream carries the API key and output format; the empty-text message
// asks the server to flush and finish.
type streamMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioFrame is one downstream websocket payload.
type audioFrame struct {
	Audio   string `json:"audio"` // base64 PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// defaultVoiceSettings tunes stability/similarity for a consistent
// streaming voice; per-voice tuning rides in VoiceProfile metadata someday,
// not here.
func defaultVoiceSettings() *voiceSettings {
	return &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
}

// SynthesizeStream implements tts.Provider: it dials the stream-input
// endpoint for voice, forwards each text fragment, and returns the channel
// of decoded PCM chunks, closed when synthesis finishes or ctx ends.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf(streamInputFmt, voice.ID, p.model), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dialing: %w", err)
	}

	// Opening message: a single space (the server rejects empty first
	// text) carrying auth and format.
	open := streamMessage{
		Text:          " ",
		VoiceSettings: defaultVoiceSettings(),
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.format,
	}
	if err := writeJSON(ctx, conn, open); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("elevenlabs: opening stream: %w", err)
	}

	pcm := make(chan []byte, 256)
	go p.pump(ctx, conn, text, pcm)
	return pcm, nil
}

// pump owns the connection for one synthesis: a nested reader drains audio
// frames into out while this goroutine forwards text, then flushes and
// waits for the tail of the audio.
func (p *Provider) pump(ctx context.Context, conn *websocket.Conn, text <-chan string, out chan<- []byte) {
	defer close(out)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, raw, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var frame audioFrame
			if json.Unmarshal(raw, &frame) != nil || frame.Audio == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				continue
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fragment, ok := <-text:
			if !ok {
				// End of input: the empty-text message flushes, then the
				// reader drains whatever audio is still in flight.
				_ = writeJSON(ctx, conn, streamMessage{Text: ""})
				<-readerDone
				return
			}
			if fragment == "" {
				continue
			}
			if err := writeJSON(ctx, conn, streamMessage{Text: fragment}); err != nil {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, raw)
}

// voiceListing mirrors GET /v1/voices.
type voiceListing struct {
	Voices []struct {
		VoiceID  string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices implements tts.Provider against the account's voice library.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: building voices request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: listing voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: voices endpoint returned %d", resp.StatusCode)
	}

	var listing voiceListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("elevenlabs: decoding voices: %w", err)
	}
	return listing.profiles(), nil
}

func (l voiceListing) profiles() []types.VoiceProfile {
	out := make([]types.VoiceProfile, 0, len(l.Voices))
	for _, v := range l.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out = append(out, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return out
}

// CloneVoice is not offered; the agent speaks with a library voice.
func (p *Provider) CloneVoice(context.Context, [][]byte) (*types.VoiceProfile, error) {
	return nil, errors.New("elevenlabs: voice cloning is not supported")
}
