// Package similarity implements the similarity-filter input pipeline:
// dropping a message that is near-duplicate of one recently seen in the
// same group, using a fast Jaro-Winkler pre-filter before falling back to an
// exact contiguous-match ratio equivalent to Python's
// difflib.SequenceMatcher.ratio().
package similarity

import (
	"context"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Config holds the tunables for one Pipeline instance.
type Config struct {
	SimilarityThreshold float64 // [0,1], default 0.85
	TimeWindow          time.Duration
	MinTextLength       int
	CrossUserFilter     bool
	Priority            int
	Enabled             bool
	ErrorHandling       input.PipelineErrorHandling
	Timeout             time.Duration
}

func (c Config) normalized() Config {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.85
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = 5 * time.Second
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.ErrorHandling == "" {
		c.ErrorHandling = input.Continue
	}
	return c
}

// Stats holds this pipeline's processing counters.
type Stats struct {
	ProcessedCount int
	DroppedCount   int
}

type entry struct {
	at     time.Time
	text   string
	userID string
}

// Pipeline is the similarity-filter input.Pipeline implementation.
type Pipeline struct {
	cfg Config

	mu        sync.Mutex
	groups    map[string][]entry
	lastPrune map[string]time.Time
	stats     Stats
}

// New returns a Pipeline configured by cfg (defaults applied for zero values).
func New(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:       cfg.normalized(),
		groups:    make(map[string][]entry),
		lastPrune: make(map[string]time.Time),
	}
}

func (p *Pipeline) Name() string                               { return "similarity_filter" }
func (p *Pipeline) Priority() int                              { return p.cfg.Priority }
func (p *Pipeline) Enabled() bool                              { return p.cfg.Enabled }
func (p *Pipeline) ErrorHandling() input.PipelineErrorHandling { return p.cfg.ErrorHandling }
func (p *Pipeline) Timeout() time.Duration                     { return p.cfg.Timeout }

// Stats returns a copy of this pipeline's counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func groupID(msg types.NormalizedMessage) string {
	if v, ok := msg.Metadata["group_id"].(string); ok && v != "" {
		return v
	}
	return msg.Source
}

func userID(msg types.NormalizedMessage) string {
	if v, ok := msg.Metadata["user_id"].(string); ok {
		return v
	}
	if accessor, ok := msg.Raw.(types.RawAccessor); ok {
		return accessor.UserID()
	}
	return ""
}

// Process drops msg if its text is near-identical to another message seen
// recently in the same group.
func (p *Pipeline) Process(ctx context.Context, msg types.NormalizedMessage) (*types.NormalizedMessage, error) {
	now := time.Now()
	group := groupID(msg)
	uid := userID(msg)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.ProcessedCount++

	p.pruneIfDueLocked(group, now)

	if len(msg.Text) < p.cfg.MinTextLength {
		return &msg, nil
	}

	for _, e := range p.groups[group] {
		if !p.cfg.CrossUserFilter && e.userID != uid {
			continue
		}
		if similarityScore(msg.Text, e.text) >= p.cfg.SimilarityThreshold {
			p.stats.DroppedCount++
			return nil, nil
		}
	}

	p.groups[group] = append(p.groups[group], entry{at: now, text: msg.Text, userID: uid})
	return &msg, nil
}

// pruneIfDueLocked drops cache entries older than TimeWindow, but only
// actually scans the group if at least TimeWindow/2 has elapsed since the
// last prune, bounding the cost of a hot group. Must be called with p.mu held.
func (p *Pipeline) pruneIfDueLocked(group string, now time.Time) {
	last, ok := p.lastPrune[group]
	if ok && now.Sub(last) < p.cfg.TimeWindow/2 {
		return
	}
	p.lastPrune[group] = now

	cutoff := now.Add(-p.cfg.TimeWindow)
	entries := p.groups[group]
	fresh := entries[:0:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		delete(p.groups, group)
	} else {
		p.groups[group] = fresh
	}
}

// similarityScore is max(contiguousMatchRatio, containedRatio), where
// containedRatio only applies when one string contains the other and the
// shorter is at least half the length of the longer.
func similarityScore(a, b string) float64 {
	ratio := contiguousMatchRatio(a, b)
	if contained := containedRatio(a, b); contained > ratio {
		ratio = contained
	}
	return ratio
}

// jaroWinklerPreFilter reports whether a and b are similar enough, by a
// cheap Jaro-Winkler distance, to be worth the exact ratio computation. It
// never rejects a true positive: the JaroWinkler similarity upper-bounds
// the contiguous-match ratio closely enough in practice that a low score
// here lets Process skip calling contiguousMatchRatio against this
// particular cached entry when it is obviously unrelated.
func jaroWinklerPreFilter(a, b string) bool {
	return matchr.JaroWinkler(a, b) >= 0.2
}

func containedRatio(a, b string) float64 {
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if shorter == "" || longer == "" {
		return 0
	}
	if !contains(longer, shorter) {
		return 0
	}
	if float64(len(shorter)) < 0.5*float64(len(longer)) {
		return 0
	}
	return float64(len(shorter)) / float64(len(longer))
}

func contains(haystack, needle string) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// contiguousMatchRatio reproduces difflib.SequenceMatcher.ratio(): twice the
// total length of matching contiguous blocks, divided by the sum of both
// string lengths. Matching blocks are found greedily, longest-first, the
// same recursive strategy SequenceMatcher uses (find the single longest
// common contiguous substring, then recurse on the left and right
// remainders), which is what makes this an edit-distance-independent metric
// that no Jaro-Winkler/Levenshtein library in the pack reproduces exactly.
func contiguousMatchRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if !jaroWinklerPreFilter(a, b) {
		return 0
	}
	matched := matchingBlockLength(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

func matchingBlockLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	start1, start2, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return matchingBlockLength(a[:start1], b[:start2]) + size + matchingBlockLength(a[start1+size:], b[start2+size:])
}

// longestMatch finds the longest contiguous substring common to a and b,
// returning its start offsets in each string and its length.
func longestMatch(a, b string) (int, int, int) {
	bestI, bestJ, bestLen := 0, 0, 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			l := 0
			for i+l < len(a) && j+l < len(b) && a[i+l] == b[j+l] {
				l++
			}
			if l > bestLen {
				bestI, bestJ, bestLen = i, j, l
			}
		}
	}
	return bestI, bestJ, bestLen
}
