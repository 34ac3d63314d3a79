// Package mcphost implements [mcp.Host]: the registry and dispatcher for
// every tool the decision provider's LLM can call. Built-in Go tools and
// external MCP servers (stdio or streamable-HTTP, via the official MCP Go
// SDK) share one catalogue, one latency ledger, and one budget-tier
// assignment path.
//
// Tiering works on evidence. A built-in tool starts at the tier its
// declared p50 implies; a server tool starts at [mcp.BudgetStandard]
// because nothing is known about it yet. Every execution feeds a per-tool
// latency ledger, and once enough samples exist the measured p50 takes
// over from the declaration. A tool whose recent error rate passes
// degradeErrorRate is pushed one tier deeper so the fast path stays
// reliable.
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/Mai-with-u/amaidesu/internal/mcp"
	"github.com/Mai-with-u/amaidesu/internal/mcp/tools"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

const (
	// ledgerSize bounds how many recent samples the latency ledger keeps
	// per tool.
	ledgerSize = 64

	// minSamples is how many measurements a tool needs before its measured
	// p50 overrides the declared one.
	minSamples = 5

	// degradeErrorRate is the recent-error fraction past which a tool is
	// demoted one tier.
	degradeErrorRate = 0.3

	// probeConcurrency bounds how many calibration probes run at once.
	probeConcurrency = 4
)

// tool is one catalogue entry. Entries are stored by pointer and their
// mutable tail (ledger, tier) is guarded by the owning Host's mutex.
type tool struct {
	def    types.ToolDefinition
	server string // empty for built-ins
	run    func(ctx context.Context, args string) (string, error)

	tier    mcp.BudgetTier
	samples []sample // ring buffer, newest at writePos-1
	writes  int
	errs    int // errors within the current ring contents
}

type sample struct {
	ms  int64
	err bool
}

// Host implements [mcp.Host]. Create instances with [New]; the zero value
// is not usable.
type Host struct {
	client *mcpsdk.Client

	mu       sync.Mutex
	catalog  map[string]*tool
	sessions map[string]*mcpsdk.ClientSession
}

var _ mcp.Host = (*Host)(nil)

// New returns an empty Host ready for registrations.
func New() *Host {
	return &Host{
		client:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: "amaidesu-mcphost", Version: "1.0.0"}, nil),
		catalog:  make(map[string]*tool),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// RegisterBuiltins adds in-process tools to the catalogue. A duplicate name
// overwrites the previous registration, ledger included.
func (h *Host) RegisterBuiltins(builtins []tools.Tool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range builtins {
		if b.Definition.Name == "" {
			return fmt.Errorf("mcphost: builtin tool with empty name")
		}
		if b.Handler == nil {
			return fmt.Errorf("mcphost: builtin tool %q has no handler", b.Definition.Name)
		}
		h.catalog[b.Definition.Name] = &tool{
			def:  b.Definition,
			run:  b.Handler,
			tier: tierForLatency(b.DeclaredP50),
		}
	}
	return nil
}

// RegisterServer connects to the MCP server described by cfg and imports
// its tool catalogue. Re-registering a name replaces the old connection and
// drops that server's previous tools.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcphost: server needs a name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case mcp.TransportStdio:
		fields := strings.Fields(cfg.Command)
		if len(fields) == 0 {
			return fmt.Errorf("mcphost: stdio server %q needs a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcphost: http server %q needs a URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("mcphost: server %q: unknown transport %q", cfg.Name, cfg.Transport)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcphost: connecting to %q: %w", cfg.Name, err)
	}

	var imported []*tool
	for sdkTool, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return fmt.Errorf("mcphost: listing tools of %q: %w", cfg.Name, err)
		}
		imported = append(imported, &tool{
			def: types.ToolDefinition{
				Name:        sdkTool.Name,
				Description: sdkTool.Description,
				Parameters:  schemaMap(sdkTool.InputSchema),
			},
			server: cfg.Name,
			run:    h.serverRunner(cfg.Name, sdkTool.Name),
			// Unknown latency until calibrated or called.
			tier: mcp.BudgetStandard,
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[cfg.Name]; ok {
		old.Close()
		for name, t := range h.catalog {
			if t.server == cfg.Name {
				delete(h.catalog, name)
			}
		}
	}
	h.sessions[cfg.Name] = session
	for _, t := range imported {
		h.catalog[t.def.Name] = t
	}
	return nil
}

// serverRunner builds the run function for one server tool: decode args,
// call through the session, concatenate text content.
func (h *Host) serverRunner(server, name string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		h.mu.Lock()
		session, ok := h.sessions[server]
		h.mu.Unlock()
		if !ok {
			return "", fmt.Errorf("mcphost: server %q is gone", server)
		}

		var decoded map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &decoded); err != nil {
				return "", fmt.Errorf("mcphost: tool %q: invalid args: %w", name, err)
			}
		}

		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: decoded})
		if err != nil {
			return "", fmt.Errorf("mcphost: tool %q: %w", name, err)
		}
		var out strings.Builder
		for _, c := range res.Content {
			if text, ok := c.(*mcpsdk.TextContent); ok {
				out.WriteString(text.Text)
			}
		}
		if res.IsError {
			return "", fmt.Errorf("mcphost: tool %q: %s", name, out.String())
		}
		return out.String(), nil
	}
}

// schemaMap renders any SDK schema value as the map shape
// types.ToolDefinition carries.
func schemaMap(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// AvailableTools returns every tool whose current tier fits within tier,
// fastest declared latency first.
func (h *Host) AvailableTools(tier mcp.BudgetTier) []types.ToolDefinition {
	h.mu.Lock()
	defer h.mu.Unlock()

	var defs []types.ToolDefinition
	for _, t := range h.catalog {
		if t.tier <= tier {
			defs = append(defs, t.def)
		}
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].EstimatedDurationMs != defs[j].EstimatedDurationMs {
			return defs[i].EstimatedDurationMs < defs[j].EstimatedDurationMs
		}
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// ExecuteTool runs the named tool and records the measurement in its
// ledger. The returned ToolResult carries application-level tool errors in
// IsError/Content; a Go error means the tool does not exist or the
// transport failed.
func (h *Host) ExecuteTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	h.mu.Lock()
	t, ok := h.catalog[name]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mcphost: no tool named %q", name)
	}

	start := time.Now()
	output, err := t.run(ctx, args)
	elapsed := time.Since(start).Milliseconds()

	h.record(name, elapsed, err != nil)

	result := &mcp.ToolResult{Content: output, DurationMs: elapsed}
	if err != nil {
		result.Content = err.Error()
		result.IsError = true
	}
	return result, nil
}

// Calibrate probes every idempotent tool with an empty argument object and
// feeds the measurements into the ledgers, so tier assignments reflect
// observed latency before the first real call. Probes run concurrently,
// bounded by probeConcurrency; only context cancellation aborts the run —
// individual probe errors are themselves useful measurements.
func (h *Host) Calibrate(ctx context.Context) error {
	h.mu.Lock()
	var names []string
	for name, t := range h.catalog {
		if t.def.Idempotent {
			names = append(names, name)
		}
	}
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, _ = h.ExecuteTool(gctx, name, "{}")
			return nil
		})
	}
	return g.Wait()
}

// record appends one measurement and re-derives the tool's tier.
func (h *Host) record(name string, ms int64, isErr bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.catalog[name]
	if !ok {
		return
	}

	if len(t.samples) < ledgerSize {
		t.samples = append(t.samples, sample{ms: ms, err: isErr})
	} else {
		old := t.samples[t.writes%ledgerSize]
		if old.err {
			t.errs--
		}
		t.samples[t.writes%ledgerSize] = sample{ms: ms, err: isErr}
	}
	t.writes++
	if isErr {
		t.errs++
	}

	if len(t.samples) < minSamples {
		return
	}
	tier := tierForLatency(int64(p50(t.samples)))
	if float64(t.errs)/float64(len(t.samples)) > degradeErrorRate && tier < mcp.BudgetDeep {
		tier++
	}
	t.tier = tier
}

// Health reports the named tool's current measurements, for diagnostics.
func (h *Host) Health(name string) (mcp.ToolHealth, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.catalog[name]
	if !ok {
		return mcp.ToolHealth{}, false
	}
	health := mcp.ToolHealth{
		Name:      name,
		CallCount: t.writes,
		Tier:      t.tier,
	}
	if len(t.samples) > 0 {
		health.MeasuredP50Ms = p50(t.samples)
		health.MeasuredP99Ms = p99(t.samples)
		health.ErrorRate = float64(t.errs) / float64(len(t.samples))
	}
	return health, true
}

// Close disconnects every server session and empties the catalogue.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for name, session := range h.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcphost: closing %q: %w", name, err)
		}
		delete(h.sessions, name)
	}
	h.catalog = make(map[string]*tool)
	return firstErr
}

func tierForLatency(p50Ms int64) mcp.BudgetTier {
	switch {
	case p50Ms <= int64(mcp.BudgetFast.MaxLatencyMs()):
		return mcp.BudgetFast
	case p50Ms <= int64(mcp.BudgetStandard.MaxLatencyMs()):
		return mcp.BudgetStandard
	default:
		return mcp.BudgetDeep
	}
}

func p50(samples []sample) int64 { return percentile(samples, 50) }
func p99(samples []sample) int64 { return percentile(samples, 99) }

func percentile(samples []sample, pct int) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int64, len(samples))
	for i, s := range samples {
		sorted[i] = s.ms
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted)*pct + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}
