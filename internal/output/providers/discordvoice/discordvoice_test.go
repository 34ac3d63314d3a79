package discordvoice

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/audiostream"
	"github.com/Mai-with-u/amaidesu/internal/output/providers/audio"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// fakeConn records Speaking transitions and captures sent Opus packets.
type fakeConn struct {
	mu       sync.Mutex
	speaking []bool
	opus     chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{opus: make(chan []byte, 64)}
}

func (f *fakeConn) Speaking(b bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaking = append(f.speaking, b)
	return nil
}

func (f *fakeConn) OpusSendChan() chan<- []byte { return f.opus }
func (f *fakeConn) Disconnect() error           { return nil }

func (f *fakeConn) speakingStates() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.speaking...)
}

func newTestProvider(t *testing.T, conn voiceConn) (*Provider, *audiostream.Channel) {
	t.Helper()
	ch := audiostream.New(slog.Default())
	p := &Provider{
		logger: slog.Default(),
		cfg:    Config{QueueSize: 64, Backpressure: audiostream.Block},
		stream: ch,
		conn:   conn,
	}
	if err := p.subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return p, ch
}

func TestUtterancePlaysAsOpusFrames(t *testing.T) {
	conn := newFakeConn()
	p, ch := newTestProvider(t, conn)
	defer ch.Close()
	defer p.Cleanup()

	meta := types.AudioMetadata{Text: "hi", SampleRate: 16000, Channels: 1, Timestamp: time.Now()}
	ch.NotifyStart(meta)

	// 100 ms of 16 kHz mono silence; converts to 100 ms at 48 kHz stereo,
	// which is five full 20 ms Opus frames.
	pcm := make([]byte, 3200)
	ch.Publish(context.Background(), types.AudioChunk{
		Data: pcm, SampleRate: 16000, Channels: 1, Sequence: 1, Timestamp: time.Now(),
	})
	ch.NotifyEnd(meta)

	deadline := time.After(3 * time.Second)
	var packets int
	for packets < 5 {
		select {
		case <-conn.opus:
			packets++
		case <-deadline:
			t.Fatalf("got %d opus packets, want at least 5", packets)
		}
	}

	waitFor(t, func() bool { return len(conn.speakingStates()) >= 2 })
	states := conn.speakingStates()
	if states[0] != true {
		t.Errorf("first speaking transition = %v, want true", states[0])
	}
	if states[len(states)-1] != false {
		t.Errorf("last speaking transition = %v, want false", states[len(states)-1])
	}
}

func TestChunkFormatOverridesUtteranceFormat(t *testing.T) {
	conn := newFakeConn()
	p, ch := newTestProvider(t, conn)
	defer ch.Close()
	defer p.Cleanup()

	// Utterance metadata says 16 kHz but the chunk itself declares 48 kHz
	// stereo; the chunk's own format must win, so 20 ms of 48 kHz stereo
	// yields exactly one full frame.
	ch.NotifyStart(types.AudioMetadata{SampleRate: 16000, Channels: 1})
	ch.Publish(context.Background(), types.AudioChunk{
		Data:       make([]byte, audio.OpusFrameSize*audio.OpusChannels*2),
		SampleRate: audio.OpusSampleRate,
		Channels:   audio.OpusChannels,
		Sequence:   1,
	})

	select {
	case <-conn.opus:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the opus packet")
	}
}

func TestChunksBeforeStartAreIgnored(t *testing.T) {
	conn := newFakeConn()
	p, ch := newTestProvider(t, conn)
	defer ch.Close()
	defer p.Cleanup()

	ch.Publish(context.Background(), types.AudioChunk{
		Data: make([]byte, 3200), SampleRate: 16000, Channels: 1, Sequence: 1,
	})

	select {
	case <-conn.opus:
		t.Fatal("chunk without a preceding NotifyStart must not produce audio")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCleanupUnsubscribes(t *testing.T) {
	conn := newFakeConn()
	p, ch := newTestProvider(t, conn)
	defer ch.Close()

	if err := p.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	ch.NotifyStart(types.AudioMetadata{SampleRate: 16000, Channels: 1})
	ch.Publish(context.Background(), types.AudioChunk{
		Data: make([]byte, 3200), SampleRate: 16000, Channels: 1, Sequence: 1,
	})
	select {
	case <-conn.opus:
		t.Fatal("audio delivered after Cleanup")
	case <-time.After(200 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
