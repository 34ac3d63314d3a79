package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestContains(t *testing.T) {
	if !contains([]string{"a", "b"}, "b") {
		t.Error("expected contains to find b")
	}
	if contains([]string{"a", "b"}, "c") {
		t.Error("expected contains to not find c")
	}
	if contains(nil, "c") {
		t.Error("contains on nil slice must be false")
	}
}

func newTestProvider(cfg Config) *Provider {
	p := &Provider{cfg: cfg}
	p.out = make(chan types.NormalizedMessage)
	p.errs = make(chan error, 1)
	return p
}

func TestHandleMessage_DeliversNormalizedText(t *testing.T) {
	p := newTestProvider(Config{IgnoreBots: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		m := &discordgo.MessageCreate{Message: &discordgo.Message{
			Content:   "hi there",
			ChannelID: "c1",
			GuildID:   "g1",
			Author:    &discordgo.User{ID: "u1", Username: "alice", Bot: false},
			Timestamp: time.Now(),
		}}
		p.handleMessage(ctx, m)
	}()

	select {
	case msg := <-p.out:
		if msg.Text != "hi there" {
			t.Errorf("got text %q", msg.Text)
		}
		if msg.Metadata["user_nickname"] != "alice" {
			t.Errorf("expected nickname alice, got %v", msg.Metadata["user_nickname"])
		}
	case <-time.After(time.Second):
		t.Fatal("handleMessage never delivered")
	}
}

func TestHandleMessage_IgnoresBotAuthor(t *testing.T) {
	p := newTestProvider(Config{IgnoreBots: true})
	ctx := context.Background()

	finished := make(chan struct{})
	go func() {
		m := &discordgo.MessageCreate{Message: &discordgo.Message{
			Content: "beep boop",
			Author:  &discordgo.User{ID: "bot1", Bot: true},
		}}
		p.handleMessage(ctx, m)
		close(finished)
	}()

	select {
	case <-p.out:
		t.Fatal("bot message must be filtered")
	case <-finished:
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHandleMessage_FiltersByChannel(t *testing.T) {
	p := newTestProvider(Config{ChannelIDs: []string{"allowed"}})
	ctx := context.Background()

	finished := make(chan struct{})
	go func() {
		m := &discordgo.MessageCreate{Message: &discordgo.Message{
			Content:   "not allowed",
			ChannelID: "other",
			Author:    &discordgo.User{ID: "u1"},
		}}
		p.handleMessage(ctx, m)
		close(finished)
	}()

	select {
	case <-p.out:
		t.Fatal("message from a non-allowed channel must be filtered")
	case <-finished:
	case <-time.After(200 * time.Millisecond):
	}
}
