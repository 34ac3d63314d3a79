// Package mock is the stt test double pair: a Provider whose StartStream
// hands back a scripted Session, and a Session whose transcript channels
// the test owns outright — send what the consumer should hear, close them
// to end the stream.
package mock

import (
	"context"
	"sync"

	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// StartStreamCall records one StartStream invocation.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a scriptable stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is handed back by StartStream; nil builds a fresh Session
	// with buffered channels.
	Session stt.SessionHandle

	// StartStreamErr fails StartStream instead.
	StartStreamErr error

	// StartStreamCalls records invocations in order.
	StartStreamCalls []StartStreamCall
}

var _ stt.Provider = (*Provider)(nil)

func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}, nil
}

// SendAudioCall records one SendAudio invocation with a copy of the chunk.
type SendAudioCall struct {
	Chunk []byte
}

// Session is a scriptable stt.SessionHandle. The test owns PartialsCh and
// FinalsCh: feed transcripts through them and close them to end the
// stream.
type Session struct {
	mu sync.Mutex

	PartialsCh chan types.Transcript
	FinalsCh   chan types.Transcript

	// SendAudioErr fails every SendAudio call.
	SendAudioErr error

	// SendAudioCalls records every delivered chunk in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount counts Close invocations.
	CloseCallCount int
}

var _ stt.SessionHandle = (*Session)(nil)

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: append([]byte(nil), chunk...)})
	return s.SendAudioErr
}

// SendAudioCallCount reports how many chunks arrived. Safe to poll from
// the test while the consumer runs.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

func (s *Session) Partials() <-chan types.Transcript { return s.PartialsCh }

func (s *Session) Finals() <-chan types.Transcript { return s.FinalsCh }

func (s *Session) SetKeywords([]types.KeywordBoost) error { return nil }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}
