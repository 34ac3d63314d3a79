// Package obscontrol implements the OutputProvider that owns the obs.*
// events: it pushes response text into an OBS text source and applies
// scene-switch / source-visibility directives over the obs-websocket v5
// protocol. Other components (the obs_control extension, game logic) only
// ever emit obs.* events; this provider is the single place that speaks to
// OBS itself.
package obscontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this provider's registration name.
const Name = "obs"

// requestTimeout bounds one obs-websocket request round trip.
const requestTimeout = 5 * time.Second

// Config controls the obs-websocket endpoint and the default text source
// response text is pushed into.
type Config struct {
	Host string
	Port int

	// TextSource is the OBS text (GDI/freetype) source updated by
	// obs.send_text events that carry no explicit source name, and by
	// Execute's response-text push.
	TextSource string

	// Scene is the scene whose items obs.set_source_visibility toggles.
	Scene string

	// SendResponseText pushes every Intent's response text into TextSource.
	SendResponseText bool
}

func parseConfig(cfg map[string]any) Config {
	c := Config{Host: "localhost", Port: 4455, TextSource: "subtitle", Scene: "Main", SendResponseText: true}
	if v, ok := cfg["obs_host"].(string); ok && v != "" {
		c.Host = v
	}
	if v, ok := cfg["obs_port"].(int64); ok && v > 0 {
		c.Port = int(v)
	}
	if v, ok := cfg["text_source"].(string); ok && v != "" {
		c.TextSource = v
	}
	if v, ok := cfg["scene"].(string); ok && v != "" {
		c.Scene = v
	}
	if v, ok := cfg["send_response_text"].(bool); ok {
		c.SendResponseText = v
	}
	return c
}

// envelope is the obs-websocket v5 message envelope. Op 0 is Hello, 1
// Identify, 2 Identified, 6 Request, 7 RequestResponse.
type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestID     string          `json:"requestId"`
	RequestStatus responseStatus  `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData"`
}

type responseStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment"`
}

// Provider renders obs.* events against a running OBS instance.
type Provider struct {
	logger *slog.Logger
	cfg    Config

	mu            sync.Mutex
	conn          *websocket.Conn
	bus           *eventbus.Bus
	subscriptions []subscription
	pending       map[string]chan responseData
	readerDone    chan struct{}
	requestSeq    atomic.Uint64
}

type subscription struct {
	event string
	id    string
}

// New constructs the provider; the obs-websocket connection is dialed in
// Start.
func New(cfg map[string]any, _ provider.Context) (provider.OutputProvider, error) {
	return &Provider{
		logger:  slog.Default().With("provider", Name),
		cfg:     parseConfig(cfg),
		pending: make(map[string]chan responseData),
	}, nil
}

// Start dials obs-websocket, completes the Hello/Identify handshake, starts
// the response reader, and subscribes to the three obs.* events.
func (p *Provider) Start(ctx context.Context, bus *eventbus.Bus) error {
	url := fmt.Sprintf("ws://%s:%d", p.cfg.Host, p.cfg.Port)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("obscontrol: dial %s: %w", url, err)
	}
	if err := p.handshake(ctx, conn); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return err
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.conn = conn
	p.bus = bus
	p.readerDone = done
	p.subscriptions = []subscription{
		{eventregistry.OBSSendText, eventbus.Subscribe(bus, eventregistry.OBSSendText, p.onSendText, 0)},
		{eventregistry.OBSSwitchScene, eventbus.Subscribe(bus, eventregistry.OBSSwitchScene, p.onSwitchScene, 0)},
		{eventregistry.OBSSetSourceVisibility, eventbus.Subscribe(bus, eventregistry.OBSSetSourceVisibility, p.onSetSourceVisibility, 0)},
	}
	p.mu.Unlock()

	go p.readLoop(conn, done)
	return nil
}

// handshake reads the server's Hello (op 0), answers Identify (op 1), and
// waits for Identified (op 2).
func (p *Provider) handshake(ctx context.Context, conn *websocket.Conn) error {
	var hello envelope
	if err := readEnvelope(ctx, conn, &hello); err != nil {
		return fmt.Errorf("obscontrol: read hello: %w", err)
	}
	if hello.Op != 0 {
		return fmt.Errorf("obscontrol: expected hello, got op %d", hello.Op)
	}

	identify, _ := json.Marshal(envelope{Op: 1, D: mustJSON(map[string]any{"rpcVersion": 1})})
	if err := conn.Write(ctx, websocket.MessageText, identify); err != nil {
		return fmt.Errorf("obscontrol: send identify: %w", err)
	}

	var identified envelope
	if err := readEnvelope(ctx, conn, &identified); err != nil {
		return fmt.Errorf("obscontrol: read identified: %w", err)
	}
	if identified.Op != 2 {
		return fmt.Errorf("obscontrol: expected identified, got op %d", identified.Op)
	}
	return nil
}

// readLoop delivers RequestResponse messages (op 7) to their waiting
// callers and discards everything else (OBS event broadcasts).
func (p *Provider) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var env envelope
		if err := readEnvelope(context.Background(), conn, &env); err != nil {
			return
		}
		if env.Op != 7 {
			continue
		}
		var resp responseData
		if err := json.Unmarshal(env.D, &resp); err != nil {
			p.logger.Warn("malformed obs response", "error", err)
			continue
		}
		p.mu.Lock()
		ch := p.pending[resp.RequestID]
		delete(p.pending, resp.RequestID)
		p.mu.Unlock()
		if ch != nil {
			ch <- resp
		}
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn, env *envelope) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, env)
}

func mustJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

func (p *Provider) onSendText(ctx context.Context, payload eventregistry.OBSSendTextPayload, _ string) error {
	source := payload.SourceName
	if source == "" {
		source = p.cfg.TextSource
	}
	_, err := p.request(ctx, "SetInputSettings", map[string]any{
		"inputName":     source,
		"inputSettings": map[string]any{"text": payload.Text},
		"overlay":       true,
	})
	return err
}

func (p *Provider) onSwitchScene(ctx context.Context, payload eventregistry.OBSSwitchScenePayload, _ string) error {
	_, err := p.request(ctx, "SetCurrentProgramScene", map[string]any{
		"sceneName": payload.SceneName,
	})
	return err
}

// onSetSourceVisibility resolves the scene item id for the named source,
// then toggles it. obs-websocket v5 addresses scene items by numeric id,
// not by source name, hence the two-step call.
func (p *Provider) onSetSourceVisibility(ctx context.Context, payload eventregistry.OBSSetSourceVisibilityPayload, _ string) error {
	resp, err := p.request(ctx, "GetSceneItemId", map[string]any{
		"sceneName":  p.cfg.Scene,
		"sourceName": payload.SourceName,
	})
	if err != nil {
		return err
	}
	var idResp struct {
		SceneItemID int `json:"sceneItemId"`
	}
	if err := json.Unmarshal(resp, &idResp); err != nil {
		return fmt.Errorf("obscontrol: parse scene item id: %w", err)
	}
	_, err = p.request(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        p.cfg.Scene,
		"sceneItemId":      idResp.SceneItemID,
		"sceneItemEnabled": payload.Visible,
	})
	return err
}

// Execute pushes the Intent's response text into the configured text source
// by emitting obs.send_text through the bus, so the push follows the same
// path (and event statistics) as every other OBS directive.
func (p *Provider) Execute(ctx context.Context, intent types.Intent) error {
	if !p.cfg.SendResponseText || intent.ResponseText == "" {
		return nil
	}
	p.mu.Lock()
	bus := p.bus
	p.mu.Unlock()
	if bus == nil {
		return fmt.Errorf("obscontrol: not started")
	}
	return bus.Emit(ctx, eventregistry.OBSSendText, eventregistry.OBSSendTextPayload{
		SourceName: p.cfg.TextSource,
		Text:       intent.ResponseText,
	}, Name)
}

// request sends one obs-websocket request and waits for its response.
func (p *Provider) request(ctx context.Context, requestType string, data map[string]any) (json.RawMessage, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("obscontrol: not connected")
	}

	id := fmt.Sprintf("%s-%d", requestType, p.requestSeq.Add(1))
	ch := make(chan responseData, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	raw, err := json.Marshal(envelope{Op: 6, D: mustJSON(requestData{
		RequestType: requestType,
		RequestID:   id,
		RequestData: data,
	})})
	if err != nil {
		return nil, fmt.Errorf("obscontrol: marshal %s: %w", requestType, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := conn.Write(reqCtx, websocket.MessageText, raw); err != nil {
		return nil, fmt.Errorf("obscontrol: send %s: %w", requestType, err)
	}

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("obscontrol: %s failed: code %d %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return resp.ResponseData, nil
	case <-reqCtx.Done():
		return nil, fmt.Errorf("obscontrol: %s: %w", requestType, reqCtx.Err())
	}
}

// Stop unsubscribes from the obs.* events and closes the connection.
func (p *Provider) Stop() error {
	p.mu.Lock()
	bus := p.bus
	subs := p.subscriptions
	conn := p.conn
	done := p.readerDone
	p.bus = nil
	p.subscriptions = nil
	p.conn = nil
	p.readerDone = nil
	p.mu.Unlock()

	if bus != nil {
		for _, s := range subs {
			bus.Off(s.event, s.id)
		}
	}
	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "shutting down")
	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	return err
}

// Cleanup is a no-op; Stop already released the connection.
func (p *Provider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "output", Name: Name, Source: "internal/output/providers/obscontrol"}
}
