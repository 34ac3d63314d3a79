// Package mock is the llm.Provider test double: pre-load the response
// fields, set the *Err fields to force failures, and read the call records
// afterwards to assert what the caller sent.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi"}}
package mock

import (
	"context"
	"sync"

	"github.com/Mai-with-u/amaidesu/pkg/provider/llm"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// StreamCall records one StreamCompletion invocation.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a scriptable llm.Provider. The zero value answers every call
// with zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse and CompleteErr script Complete.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// StreamChunks are sent, in order, on the channel StreamCompletion
	// returns; StreamErr instead fails the call before any channel opens.
	StreamChunks []llm.Chunk
	StreamErr    error

	// TokenCount and CountTokensErr script CountTokens.
	TokenCount     int
	CountTokensErr error

	// ModelCapabilities scripts Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls and StreamCalls record invocations in order.
	CompleteCalls []CompleteCall
	StreamCalls   []StreamCall
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	err := p.StreamErr
	chunks := append([]llm.Chunk(nil), p.StreamChunks...)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *Provider) CountTokens([]types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, p.CountTokensErr
}

func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}
