// Package discordvoice implements an OutputProvider that plays the agent's
// synthesized speech into a Discord voice channel. It subscribes to the
// Audio Stream Channel, converts each utterance's PCM to Discord's 48 kHz
// stereo format, and sends 20 ms Opus frames over a discordgo voice
// connection.
package discordvoice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Mai-with-u/amaidesu/internal/audiostream"
	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/audio"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is this provider's registration name.
const Name = "discord_voice"

// sendTimeout bounds one Opus frame's send before the frame is dropped,
// so a dead voice connection can never wedge the audio consumer goroutine.
const sendTimeout = time.Second

// Config controls which guild voice channel the provider joins.
type Config struct {
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv  string
	GuildID   string
	ChannelID string

	// QueueSize and Backpressure configure this provider's Audio Stream
	// Channel subscription.
	QueueSize    int
	Backpressure audiostream.BackpressureStrategy
}

func parseConfig(cfg map[string]any) Config {
	c := Config{TokenEnv: "DISCORD_TOKEN", QueueSize: 200, Backpressure: audiostream.Block}
	if v, ok := cfg["token_env"].(string); ok && v != "" {
		c.TokenEnv = v
	}
	if v, ok := cfg["guild_id"].(string); ok {
		c.GuildID = v
	}
	if v, ok := cfg["channel_id"].(string); ok {
		c.ChannelID = v
	}
	if v, ok := cfg["queue_size"].(int64); ok && v > 0 {
		c.QueueSize = int(v)
	}
	if v, ok := cfg["backpressure"].(string); ok && v != "" {
		c.Backpressure = audiostream.BackpressureStrategy(v)
	}
	return c
}

// voiceConn is the subset of discordgo's voice connection this provider
// drives, extracted so tests can stub the wire.
type voiceConn interface {
	Speaking(b bool) error
	OpusSendChan() chan<- []byte
	Disconnect() error
}

// discordVoiceConn adapts *discordgo.VoiceConnection to voiceConn.
type discordVoiceConn struct {
	vc *discordgo.VoiceConnection
}

func (d *discordVoiceConn) Speaking(b bool) error       { return d.vc.Speaking(b) }
func (d *discordVoiceConn) OpusSendChan() chan<- []byte { return d.vc.OpusSend }
func (d *discordVoiceConn) Disconnect() error           { return d.vc.Disconnect() }

// Provider plays Audio Stream Channel utterances into a Discord voice
// channel.
type Provider struct {
	logger *slog.Logger
	cfg    Config
	stream provider.AudioStream

	mu           sync.Mutex
	session      *discordgo.Session
	conn         voiceConn
	encoder      *audio.OpusEncoder
	srcFormat    audio.Format
	subscription string
}

// New constructs the provider; the voice connection is not dialed until
// Start.
func New(cfg map[string]any, ctx provider.Context) (provider.OutputProvider, error) {
	c := parseConfig(cfg)
	if c.GuildID == "" || c.ChannelID == "" {
		return nil, fmt.Errorf("discordvoice: guild_id and channel_id are required")
	}
	return &Provider{
		logger: slog.Default().With("provider", Name),
		cfg:    c,
		stream: ctx.AudioStream,
	}, nil
}

// Start opens the Discord session, joins the configured voice channel, and
// subscribes to the Audio Stream Channel.
func (p *Provider) Start(ctx context.Context, _ *eventbus.Bus) error {
	token := os.Getenv(p.cfg.TokenEnv)
	if token == "" {
		return fmt.Errorf("discordvoice: bot token env %q is unset", p.cfg.TokenEnv)
	}
	if p.stream == nil {
		return fmt.Errorf("discordvoice: no audio stream channel in provider context")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("discordvoice: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildVoiceStates
	if err := session.Open(); err != nil {
		return fmt.Errorf("discordvoice: open gateway: %w", err)
	}

	vc, err := session.ChannelVoiceJoin(p.cfg.GuildID, p.cfg.ChannelID, false, true)
	if err != nil {
		session.Close()
		return fmt.Errorf("discordvoice: join voice channel: %w", err)
	}

	p.mu.Lock()
	p.session = session
	p.conn = &discordVoiceConn{vc: vc}
	p.mu.Unlock()

	return p.subscribe()
}

// subscribe registers the three utterance callbacks with the Audio Stream
// Channel. Split from Start so tests can drive the provider with a stubbed
// voiceConn and a real channel.
func (p *Provider) subscribe() error {
	id, err := p.stream.Subscribe(Name, p.onStart, p.onChunk, p.onEnd, audiostream.SubscriptionConfig{
		QueueSize:            p.cfg.QueueSize,
		BackpressureStrategy: p.cfg.Backpressure,
	})
	if err != nil {
		return fmt.Errorf("discordvoice: subscribe to audio stream: %w", err)
	}
	p.mu.Lock()
	p.subscription = id
	p.mu.Unlock()
	return nil
}

func (p *Provider) onStart(meta types.AudioMetadata) {
	enc, err := audio.NewOpusEncoder()
	if err != nil {
		p.logger.Error("cannot start utterance", "error", err)
		return
	}

	p.mu.Lock()
	p.encoder = enc
	p.srcFormat = audio.Format{SampleRate: meta.SampleRate, Channels: meta.Channels}
	conn := p.conn
	p.mu.Unlock()

	if conn != nil {
		if err := conn.Speaking(true); err != nil {
			p.logger.Warn("speaking notification failed", "error", err)
		}
	}
}

func (p *Provider) onChunk(chunk types.AudioChunk) {
	p.mu.Lock()
	enc := p.encoder
	src := p.srcFormat
	conn := p.conn
	p.mu.Unlock()
	if enc == nil || conn == nil {
		return
	}

	if chunk.SampleRate > 0 {
		src = audio.Format{SampleRate: chunk.SampleRate, Channels: chunk.Channels}
	}
	pcm := audio.Convert(chunk.Data, src, audio.Format{SampleRate: audio.OpusSampleRate, Channels: audio.OpusChannels})

	packets, err := enc.Encode(pcm)
	if err != nil {
		p.logger.Warn("opus encode failed", "error", err, "sequence", chunk.Sequence)
		return
	}
	for _, packet := range packets {
		p.send(conn, packet)
	}
}

func (p *Provider) onEnd(types.AudioMetadata) {
	p.mu.Lock()
	enc := p.encoder
	conn := p.conn
	p.encoder = nil
	p.mu.Unlock()

	if enc != nil && conn != nil {
		if packet, err := enc.Flush(); err != nil {
			p.logger.Warn("opus flush failed", "error", err)
		} else if packet != nil {
			p.send(conn, packet)
		}
	}
	if conn != nil {
		if err := conn.Speaking(false); err != nil {
			p.logger.Warn("speaking notification failed", "error", err)
		}
	}
}

func (p *Provider) send(conn voiceConn, packet []byte) {
	select {
	case conn.OpusSendChan() <- packet:
	case <-time.After(sendTimeout):
		p.logger.Warn("opus send timed out, dropping frame")
	}
}

// Execute is a no-op: this provider renders audio via its Audio Stream
// Channel subscription, not per-Intent dispatch. The manager still calls it
// for every Intent, so it must return promptly.
func (p *Provider) Execute(context.Context, types.Intent) error { return nil }

// Stop leaves the voice channel and tears down the subscription.
func (p *Provider) Stop() error { return p.Cleanup() }

// Cleanup unsubscribes and closes the Discord session.
func (p *Provider) Cleanup() error {
	p.mu.Lock()
	conn := p.conn
	session := p.session
	sub := p.subscription
	p.conn = nil
	p.session = nil
	p.subscription = ""
	p.mu.Unlock()

	if sub != "" && p.stream != nil {
		p.stream.Unsubscribe(sub)
	}
	var firstErr error
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
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
	return provider.RegistrationInfo{Layer: "output", Name: Name, Source: "internal/output/providers/discordvoice"}
}
