// Package deepgram backs stt.Provider with Deepgram's streaming websocket
// API: raw PCM goes up as binary frames, interim and final results come
// back as JSON events on the same connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

const listenEndpoint = "wss://api.deepgram.com/v1/listen"

// ErrNoLiveKeywordUpdate is wrapped by SetKeywords: keyword boosts are
// query parameters of the connection, fixed at StartStream.
var ErrNoLiveKeywordUpdate = errors.New("deepgram fixes keywords at connect time")

// Config collects the provider-level defaults a per-stream StreamConfig
// may override.
type Config struct {
	Model      string // default "nova-3"
	Language   string // default "en"
	SampleRate int    // default 16000
}

// Option adjusts the provider defaults.
type Option func(*Config)

// WithModel selects the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(c *Config) { c.Language = language }
}

// WithSampleRate sets the default PCM sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// Provider implements stt.Provider over the Deepgram streaming API.
type Provider struct {
	apiKey string
	cfg    Config
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider authenticating with apiKey, which must be
// non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	cfg := Config{Model: "nova-3", Language: "en", SampleRate: 16000}
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{apiKey: apiKey, cfg: cfg}, nil
}

// StartStream dials the listen endpoint with the resolved parameters and
// starts the send/receive pumps.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	conn, _, err := websocket.Dial(ctx, p.listenURL(cfg), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dialing: %w", err)
	}

	s := &session{
		conn:     conn,
		audio:    make(chan []byte, 256),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		closed:   make(chan struct{}),
	}
	s.pumps.Add(2)
	go s.send(ctx)
	go s.receive(ctx)
	return s, nil
}

// listenURL renders the websocket URL with model, language, sample rate,
// channels, and any keyword boosts ("word:boost" entries).
func (p *Provider) listenURL(cfg stt.StreamConfig) string {
	language := cfg.Language
	if language == "" {
		language = p.cfg.Language
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = p.cfg.SampleRate
	}

	q := url.Values{}
	q.Set("model", p.cfg.Model)
	q.Set("language", language)
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, kw := range cfg.Keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}
	return listenEndpoint + "?" + q.Encode()
}

// session is one live connection. It implements stt.SessionHandle.
type session struct {
	conn *websocket.Conn

	audio    chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	closed    chan struct{}
	closeOnce sync.Once
	pumps     sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

// SendAudio queues one PCM chunk for upload.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.closed:
		return errors.New("deepgram: session closed")
	case s.audio <- chunk:
		return nil
	}
}

// Partials returns the interim-result channel.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the committed-result channel.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords refuses; see ErrNoLiveKeywordUpdate.
func (s *session) SetKeywords([]types.KeywordBoost) error {
	return fmt.Errorf("deepgram: %w", ErrNoLiveKeywordUpdate)
}

// Close asks Deepgram to flush, waits for the pumps, and drops the
// connection. Idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.conn.Write(flushCtx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.pumps.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "done")
	})
	return nil
}

// send forwards queued audio as binary frames until the session closes.
func (s *session) send(ctx context.Context) {
	defer s.pumps.Done()
	for {
		select {
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		}
	}
}

// receive decodes result events into transcripts until the connection
// drops, then closes both output channels.
func (s *session) receive(ctx context.Context) {
	defer s.pumps.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, raw, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		transcript, ok := decodeResult(raw)
		if !ok {
			continue
		}
		out := s.partials
		if transcript.IsFinal {
			out = s.finals
		}
		select {
		case out <- transcript:
		case <-s.closed:
		}
	}
}

// resultEvent mirrors the fields of Deepgram's "Results" message this
// package consumes.
type resultEvent struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeResult turns one websocket message into a Transcript; anything
// other than a Results event with at least one alternative is skipped.
func decodeResult(raw []byte) (types.Transcript, bool) {
	var ev resultEvent
	if json.Unmarshal(raw, &ev) != nil || ev.Type != "Results" || len(ev.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	best := ev.Channel.Alternatives[0]
	out := types.Transcript{
		Text:       best.Transcript,
		IsFinal:    ev.IsFinal,
		Confidence: best.Confidence,
	}
	for _, w := range best.Words {
		out.Words = append(out.Words, types.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}
	return out, true
}
