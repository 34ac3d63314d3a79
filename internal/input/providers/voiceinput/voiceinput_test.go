package voiceinput

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	sttmock "github.com/Mai-with-u/amaidesu/pkg/provider/stt/mock"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// pipeSource wraps an io.Pipe reader so the test can feed PCM and close it.
type pipeSource struct {
	*io.PipeReader
}

func newSession() *sttmock.Session {
	return &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
}

func TestStreamYieldsFinalTranscripts(t *testing.T) {
	sess := newSession()
	backend := &sttmock.Provider{Session: sess}
	pr, pw := io.Pipe()
	p := NewWithSource(pipeSource{pr}, backend, Config{Importance: 0.7})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, _ := p.Stream(ctx)

	sess.FinalsCh <- types.Transcript{Text: "hello there", IsFinal: true, Confidence: 0.9}
	sess.FinalsCh <- types.Transcript{Text: "", IsFinal: true}

	select {
	case msg := <-out:
		if msg.Text != "hello there" {
			t.Errorf("Text = %q, want %q", msg.Text, "hello there")
		}
		if msg.Source != Name {
			t.Errorf("Source = %q, want %q", msg.Source, Name)
		}
		if msg.DataType != types.DataTypeText {
			t.Errorf("DataType = %q, want %q", msg.DataType, types.DataTypeText)
		}
		if msg.Importance != 0.7 {
			t.Errorf("Importance = %v, want 0.7", msg.Importance)
		}
		if got := msg.Metadata["confidence"]; got != 0.9 {
			t.Errorf("Metadata[confidence] = %v, want 0.9", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcribed message")
	}

	// The empty-text final must not surface; closing the finals channel ends
	// the stream instead.
	close(sess.FinalsCh)
	select {
	case msg, ok := <-out:
		if ok {
			t.Fatalf("unexpected extra message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream close")
	}
	pw.Close()
}

func TestStreamDropsLowConfidence(t *testing.T) {
	sess := newSession()
	backend := &sttmock.Provider{Session: sess}
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewWithSource(pipeSource{pr}, backend, Config{MinConfidence: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, _ := p.Stream(ctx)

	sess.FinalsCh <- types.Transcript{Text: "mumble", IsFinal: true, Confidence: 0.2}
	sess.FinalsCh <- types.Transcript{Text: "clear speech", IsFinal: true, Confidence: 0.95}

	select {
	case msg := <-out:
		if msg.Text != "clear speech" {
			t.Errorf("Text = %q, want the high-confidence transcript", msg.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for high-confidence message")
	}
}

func TestStreamPumpsAudioFrames(t *testing.T) {
	sess := newSession()
	backend := &sttmock.Provider{Session: sess}
	pr, pw := io.Pipe()
	p := NewWithSource(pipeSource{pr}, backend, Config{SampleRate: 16000, Channels: 1, FrameMs: 100})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Stream(ctx)

	// One 100 ms mono frame at 16 kHz int16 is 3200 bytes.
	frame := make([]byte, 3200)
	if _, err := pw.Write(frame); err != nil {
		t.Fatalf("feeding pcm: %v", err)
	}
	pw.Close()

	deadline := time.After(2 * time.Second)
	for sess.SendAudioCallCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for SendAudio")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := len(sess.SendAudioCalls[0].Chunk); got != 3200 {
		t.Errorf("first frame size = %d, want 3200", got)
	}
}

func TestStartStreamErrorSurfacesOnErrorChannel(t *testing.T) {
	backend := &sttmock.Provider{StartStreamErr: io.ErrClosedPipe}
	pr, _ := io.Pipe()
	p := NewWithSource(pipeSource{pr}, backend, Config{})

	out, errs := p.Stream(context.Background())
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("want a start error, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start error")
	}
	if _, ok := <-out; ok {
		t.Error("message channel should be closed after a failed start")
	}
}

// countingSession tracks Close calls without racing the pump goroutine.
type countingSession struct {
	*sttmock.Session
	closed atomic.Int32
}

func (c *countingSession) Close() error {
	c.closed.Add(1)
	return c.Session.Close()
}

func TestStopClosesSessionAndSource(t *testing.T) {
	sess := &countingSession{Session: newSession()}
	backend := &sttmock.Provider{Session: sess}
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewWithSource(pipeSource{pr}, backend, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Stream(ctx)

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sess.closed.Load() == 0 {
		t.Error("Stop should close the stt session")
	}
	// Stop twice is safe.
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
