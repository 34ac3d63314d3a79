// Package discord implements an InputProvider that reads chat messages out
// of a Discord guild's text channels via discordgo and normalizes each one.
// Only the read-only gateway subset is used: one session, message-create
// intents, no command registration.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "discord_input"

// Config controls the Discord input provider.
type Config struct {
	Token      string
	GuildID    string
	ChannelIDs []string // empty means "all channels in GuildID"
	IgnoreBots bool
}

// Provider streams normalized text messages observed in a Discord guild.
type Provider struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	mu     sync.Mutex
	out    chan types.NormalizedMessage
	errs   chan error
	remove func()
}

// New constructs the Discord input provider from its config section.
func New(cfg map[string]any, _ provider.Context) (provider.InputProvider, error) {
	c := Config{IgnoreBots: true}
	if v, ok := cfg["token"].(string); ok {
		c.Token = v
	}
	if v, ok := cfg["guild_id"].(string); ok {
		c.GuildID = v
	}
	if raw, ok := cfg["channel_ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				c.ChannelIDs = append(c.ChannelIDs, s)
			}
		}
	}
	if v, ok := cfg["ignore_bots"].(bool); ok {
		c.IgnoreBots = v
	}
	if c.Token == "" {
		return nil, fmt.Errorf("discord_input: token is required")
	}
	return &Provider{cfg: c, logger: slog.Default().With("provider", Name)}, nil
}

func (p *Provider) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord_input: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	p.mu.Lock()
	p.out = make(chan types.NormalizedMessage)
	p.errs = make(chan error, 1)
	p.mu.Unlock()

	p.remove = session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		p.handleMessage(ctx, m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord_input: open session: %w", err)
	}
	p.session = session
	return nil
}

func (p *Provider) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if p.cfg.IgnoreBots && m.Author != nil && m.Author.Bot {
		return
	}
	if p.cfg.GuildID != "" && m.GuildID != p.cfg.GuildID {
		return
	}
	if len(p.cfg.ChannelIDs) > 0 && !contains(p.cfg.ChannelIDs, m.ChannelID) {
		return
	}
	if m.Content == "" {
		return
	}

	nickname := ""
	userID := ""
	if m.Author != nil {
		nickname = m.Author.Username
		userID = m.Author.ID
	}

	msg := types.NormalizedMessage{
		Text:       m.Content,
		Source:     Name,
		DataType:   types.DataTypeText,
		Importance: 0.5,
		Timestamp:  m.Timestamp,
		Metadata: map[string]any{
			"user_id":       userID,
			"user_nickname": nickname,
			"platform":      "discord",
			"channel_id":    m.ChannelID,
			"guild_id":      m.GuildID,
		},
	}

	p.mu.Lock()
	out := p.out
	p.mu.Unlock()
	if out == nil {
		return
	}

	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (p *Provider) Stream(ctx context.Context) (<-chan types.NormalizedMessage, <-chan error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out, p.errs
}

func (p *Provider) Stop() error {
	if p.remove != nil {
		p.remove()
	}
	return p.Cleanup()
}

func (p *Provider) Cleanup() error {
	p.mu.Lock()
	session := p.session
	out := p.out
	errs := p.errs
	p.session = nil
	p.out = nil
	p.errs = nil
	p.mu.Unlock()

	if out != nil {
		close(out)
	}
	if errs != nil {
		close(errs)
	}
	if session != nil {
		if err := session.Close(); err != nil {
			return fmt.Errorf("discord_input: close session: %w", err)
		}
	}
	return nil
}

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "input", Name: Name, Source: "internal/input/providers/discord"}
}
