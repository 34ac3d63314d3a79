// Package tier provides a lightweight heuristic budget-tier selector for
// MCP tool access during a live session.
//
// The [Selector] inspects a normalized message's text using keyword
// detection and conversation state to choose the [mcp.BudgetTier] the
// LLM-based decision provider offers its tools under. It deliberately
// avoids LLM calls so selection stays well below 1 ms and can run inline
// in the message handling path.
//
// Tier priority (highest first):
//
//  1. Explicit operator override (non-zero override value)
//  2. DEEP keyword match — demoted to STANDARD if within the anti-spam window
//  3. High chat backlog (≥ 3 pending messages) → FAST
//  4. STANDARD keyword match
//  5. First conversation turn → STANDARD
//  6. Default → FAST
package tier

import (
	"strings"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/mcp"
)

// defaultMinDeepInterval is the minimum time between consecutive DEEP tier
// selections. A second DEEP selection within this window is demoted to
// STANDARD so a chat spamming "search the web" cannot trigger runaway
// expensive tool usage.
const defaultMinDeepInterval = 30 * time.Second

// defaultDeepKeywords trigger [mcp.BudgetDeep]. They indicate
// high-complexity or latency-tolerant requests where the viewer expects
// the agent to take its time.
var defaultDeepKeywords = []string{
	"think carefully", "take your time", "explain everything",
	"tell me everything", "in detail", "deep search",
	"generate image", "search the web",
}

// defaultStandardKeywords trigger [mcp.BudgetStandard]. They indicate
// memory or lookup requests that need more than the fastest tools but do
// not warrant full deep access.
var defaultStandardKeywords = []string{
	"remember", "last time", "do you recall", "previously",
	"what happened", "search", "look up",
	"how does", "who is", "who was",
	"tell me about", "history of", "what did we",
}

// Option is a functional option for configuring a [Selector].
type Option func(*Selector)

// WithDeepKeywords replaces the default deep-tier trigger keywords. Each
// keyword is matched case-insensitively as a substring of the message text.
func WithDeepKeywords(keywords ...string) Option {
	return func(s *Selector) {
		s.deepKeywords = append([]string(nil), keywords...)
	}
}

// WithStandardKeywords replaces the default standard-tier trigger keywords.
// Each keyword is matched case-insensitively as a substring of the message
// text.
func WithStandardKeywords(keywords ...string) Option {
	return func(s *Selector) {
		s.standardKeywords = append([]string(nil), keywords...)
	}
}

// WithMinDeepInterval sets the minimum elapsed time required between two
// consecutive [mcp.BudgetDeep] selections. A DEEP-matching message inside
// this interval is demoted to [mcp.BudgetStandard].
//
// The default is 30 seconds.
func WithMinDeepInterval(d time.Duration) Option {
	return func(s *Selector) {
		s.minDeepInterval = d
	}
}

// Selector determines the appropriate [mcp.BudgetTier] for a given message.
// It uses keyword detection and conversation state rather than LLM calls so
// selection is effectively free.
//
// All methods are safe for concurrent use.
type Selector struct {
	// Configuration — immutable after construction.
	deepKeywords     []string
	standardKeywords []string
	minDeepInterval  time.Duration

	// State — protected by mu.
	mu           sync.Mutex
	turnCount    int       // turns in the current conversation
	lastDeepTime time.Time // time of the last DEEP selection
	backlog      int       // pending messages waiting for a decision
}

// NewSelector creates a Selector with the given options applied over the
// defaults. The selector is ready to use immediately.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		deepKeywords:     append([]string(nil), defaultDeepKeywords...),
		standardKeywords: append([]string(nil), defaultStandardKeywords...),
		minDeepInterval:  defaultMinDeepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the appropriate [mcp.BudgetTier] for text. override wins
// unconditionally when non-zero ([mcp.BudgetFast] is the zero value, so
// zero means "no override set" — an operator pinning FAST should instead
// disable tools entirely). The remaining priority order is documented on
// the package.
//
// Select is goroutine-safe and executes in sub-millisecond time (pure
// string operations, no I/O).
func (s *Selector) Select(text string, override mcp.BudgetTier) mcp.BudgetTier {
	if override != 0 {
		return override
	}

	lower := strings.ToLower(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	// DEEP keyword match, subject to the anti-spam guard.
	if containsAny(lower, s.deepKeywords) {
		now := time.Now()
		if !s.lastDeepTime.IsZero() && now.Sub(s.lastDeepTime) < s.minDeepInterval {
			return mcp.BudgetStandard
		}
		s.lastDeepTime = now
		return mcp.BudgetDeep
	}

	// A busy chat gets fast responses over thorough ones. This intentionally
	// overrides STANDARD keyword matches but not DEEP ones.
	if s.backlog >= 3 {
		return mcp.BudgetFast
	}

	if containsAny(lower, s.standardKeywords) {
		return mcp.BudgetStandard
	}

	// First turn: allow memory lookups for the opening exchange.
	if s.turnCount == 0 {
		return mcp.BudgetStandard
	}

	return mcp.BudgetFast
}

// RecordTurn increments the conversation turn counter. Call after each
// completed message-response exchange so the first-turn heuristic advances.
func (s *Selector) RecordTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCount++
}

// SetBacklog updates the number of messages currently waiting for a
// decision. A backlog of three or more causes [Select] to prefer
// [mcp.BudgetFast] over keyword-based STANDARD selections.
func (s *Selector) SetBacklog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = n
}

// Reset clears all per-session state (turn count, last deep time, backlog).
// Call when starting a new conversation session.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCount = 0
	s.lastDeepTime = time.Time{}
	s.backlog = 0
}

// containsAny reports whether lower contains any of the given keywords as a
// substring. lower must already be lowercased.
func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
