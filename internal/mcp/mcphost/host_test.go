package mcphost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/mcp"
	"github.com/Mai-with-u/amaidesu/internal/mcp/tools"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func builtin(name string, p50 int64, handler func(context.Context, string) (string, error)) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:                name,
			EstimatedDurationMs: int(p50),
			Idempotent:          true,
		},
		Handler:     handler,
		DeclaredP50: p50,
		DeclaredMax: p50 * 4,
	}
}

func echoHandler(_ context.Context, args string) (string, error) { return args, nil }

func TestRegisterBuiltinsValidation(t *testing.T) {
	t.Parallel()
	h := New()

	if err := h.RegisterBuiltins([]tools.Tool{{Definition: types.ToolDefinition{Name: ""}}}); err == nil {
		t.Error("empty tool name should be rejected")
	}
	if err := h.RegisterBuiltins([]tools.Tool{{Definition: types.ToolDefinition{Name: "x"}}}); err == nil {
		t.Error("missing handler should be rejected")
	}
	if err := h.RegisterBuiltins([]tools.Tool{builtin("echo", 10, echoHandler)}); err != nil {
		t.Fatalf("valid builtin rejected: %v", err)
	}
}

func TestExecuteToolRoundTrip(t *testing.T) {
	t.Parallel()
	h := New()
	if err := h.RegisterBuiltins([]tools.Tool{builtin("echo", 10, echoHandler)}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := h.ExecuteTool(context.Background(), "echo", `{"a":1}`)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if res.IsError || res.Content != `{"a":1}` {
		t.Errorf("result = %+v", res)
	}
	if res.DurationMs < 0 {
		t.Errorf("DurationMs = %d", res.DurationMs)
	}
}

func TestExecuteToolUnknownName(t *testing.T) {
	t.Parallel()
	if _, err := New().ExecuteTool(context.Background(), "ghost", "{}"); err == nil {
		t.Fatal("unknown tool must return an error")
	}
}

func TestExecuteToolApplicationError(t *testing.T) {
	t.Parallel()
	h := New()
	boom := errors.New("bad input")
	h.RegisterBuiltins([]tools.Tool{builtin("fail", 10, func(context.Context, string) (string, error) {
		return "", boom
	})})

	res, err := h.ExecuteTool(context.Background(), "fail", "{}")
	if err != nil {
		t.Fatalf("handler errors are application-level, got transport error %v", err)
	}
	if !res.IsError || res.Content != "bad input" {
		t.Errorf("result = %+v", res)
	}
}

func TestAvailableToolsFiltersAndSortsByTier(t *testing.T) {
	t.Parallel()
	h := New()
	h.RegisterBuiltins([]tools.Tool{
		builtin("instant", 5, echoHandler),     // FAST
		builtin("lookup", 900, echoHandler),    // STANDARD
		builtin("research", 3000, echoHandler), // DEEP
	})

	fast := h.AvailableTools(mcp.BudgetFast)
	if len(fast) != 1 || fast[0].Name != "instant" {
		t.Errorf("FAST tools = %v", names(fast))
	}

	standard := h.AvailableTools(mcp.BudgetStandard)
	if len(standard) != 2 || standard[0].Name != "instant" || standard[1].Name != "lookup" {
		t.Errorf("STANDARD tools = %v, want [instant lookup] fastest first", names(standard))
	}

	deep := h.AvailableTools(mcp.BudgetDeep)
	if len(deep) != 3 {
		t.Errorf("DEEP tools = %v, want all three", names(deep))
	}
}

func TestMeasurementsRetier(t *testing.T) {
	t.Parallel()
	h := New()
	// Declared fast, actually slow: after minSamples calls the measured
	// p50 must move it out of the FAST tier.
	h.RegisterBuiltins([]tools.Tool{builtin("liar", 5, func(context.Context, string) (string, error) {
		time.Sleep(600 * time.Millisecond)
		return "ok", nil
	})})

	for range minSamples {
		if _, err := h.ExecuteTool(context.Background(), "liar", "{}"); err != nil {
			t.Fatalf("ExecuteTool: %v", err)
		}
	}

	if got := h.AvailableTools(mcp.BudgetFast); len(got) != 0 {
		t.Errorf("FAST still lists %v after slow measurements", names(got))
	}
	health, ok := h.Health("liar")
	if !ok {
		t.Fatal("Health: tool missing")
	}
	if health.MeasuredP50Ms < 500 {
		t.Errorf("MeasuredP50Ms = %d, want >= 500", health.MeasuredP50Ms)
	}
	if health.Tier == mcp.BudgetFast {
		t.Error("tier should no longer be FAST")
	}
}

func TestErrorRateDegradesTier(t *testing.T) {
	t.Parallel()
	h := New()
	var calls int
	h.RegisterBuiltins([]tools.Tool{builtin("flaky", 5, func(context.Context, string) (string, error) {
		calls++
		if calls%2 == 0 {
			return "", errors.New("flaked")
		}
		return "ok", nil
	})})

	for range minSamples * 2 {
		h.ExecuteTool(context.Background(), "flaky", "{}")
	}

	health, ok := h.Health("flaky")
	if !ok {
		t.Fatal("Health: tool missing")
	}
	if health.ErrorRate < 0.4 {
		t.Errorf("ErrorRate = %f, want ~0.5", health.ErrorRate)
	}
	// Fast by latency, but the error rate pushes it one tier deeper.
	if health.Tier != mcp.BudgetStandard {
		t.Errorf("Tier = %s, want STANDARD after degradation", health.Tier)
	}
}

func TestCalibrateProbesIdempotentTools(t *testing.T) {
	t.Parallel()
	h := New()
	var probed int
	h.RegisterBuiltins([]tools.Tool{builtin("probe_me", 5, func(context.Context, string) (string, error) {
		probed++
		return "ok", nil
	})})
	mutating := builtin("skip_me", 5, func(context.Context, string) (string, error) {
		t.Error("non-idempotent tool must not be probed")
		return "", nil
	})
	mutating.Definition.Idempotent = false
	h.RegisterBuiltins([]tools.Tool{mutating})

	if err := h.Calibrate(context.Background()); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if probed != 1 {
		t.Errorf("probe count = %d, want 1", probed)
	}
}

func TestCloseEmptiesCatalog(t *testing.T) {
	t.Parallel()
	h := New()
	h.RegisterBuiltins([]tools.Tool{builtin("echo", 10, echoHandler)})
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := h.AvailableTools(mcp.BudgetDeep); len(got) != 0 {
		t.Errorf("catalogue not emptied: %v", names(got))
	}
}

func names(defs []types.ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}
