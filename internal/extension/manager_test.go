package extension

import (
	"context"
	"errors"
	"testing"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

type stubExtension struct {
	name  string
	deps  []string
	setup func() ([]string, error)
	calls *[]string
}

func (s stubExtension) Info() types.ExtensionInfo {
	return types.ExtensionInfo{Name: s.name, Dependencies: s.deps, Enabled: true}
}

func (s stubExtension) Dependencies() []string { return s.deps }

func (s stubExtension) Setup(ctx context.Context, bus *eventbus.Bus, cfg map[string]any) ([]string, error) {
	if s.calls != nil {
		*s.calls = append(*s.calls, "setup:"+s.name)
	}
	if s.setup != nil {
		return s.setup()
	}
	return []string{s.name + ".provider"}, nil
}

func (s stubExtension) Cleanup(ctx context.Context) error {
	if s.calls != nil {
		*s.calls = append(*s.calls, "cleanup:"+s.name)
	}
	return nil
}

func newTestManager() *Manager {
	bus := eventbus.New(eventregistry.New(), nil)
	return New(bus, nil)
}

func TestLoadAll_OrdersByDependency(t *testing.T) {
	m := newTestManager()
	var calls []string

	m.Register("a", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "a", deps: []string{"b"}, calls: &calls}, nil
	})
	m.Register("b", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "b", calls: &calls}, nil
	})

	results, err := m.LoadAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results["a"].Loaded || !results["b"].Loaded {
		t.Fatalf("expected both extensions loaded, got %+v", results)
	}

	bIdx, aIdx := -1, -1
	for i, name := range m.LoadedNames() {
		if name == "a" {
			aIdx = i
		}
		if name == "b" {
			bIdx = i
		}
	}
	if bIdx == -1 || aIdx == -1 || bIdx > aIdx {
		t.Fatalf("expected b to load before a (a depends on b), got order %v", m.LoadedNames())
	}
}

func TestLoadAll_CyclicDependencyLoadsNothing(t *testing.T) {
	m := newTestManager()
	m.Register("a", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "a", deps: []string{"b"}}, nil
	})
	m.Register("b", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "b", deps: []string{"a"}}, nil
	})

	_, err := m.LoadAll(context.Background(), nil)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
	if len(m.LoadedNames()) != 0 {
		t.Fatalf("expected no extension loaded on cycle, got %v", m.LoadedNames())
	}
}

func TestLoadAll_DisabledExtensionSkipped(t *testing.T) {
	m := newTestManager()
	m.Register("a", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "a"}, nil
	})

	results, err := m.LoadAll(context.Background(), map[string]map[string]any{
		"a": {"enabled": false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := results["a"]; ok {
		t.Fatalf("expected disabled extension to be absent from results, got %+v", results)
	}
}

func TestLoadAll_OneFailureDoesNotBlockOthers(t *testing.T) {
	m := newTestManager()
	m.Register("bad", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "bad", setup: func() ([]string, error) {
			return nil, errors.New("boom")
		}}, nil
	})
	m.Register("good", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "good"}, nil
	})

	results, err := m.LoadAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results["bad"].Loaded {
		t.Fatal("expected bad extension to fail to load")
	}
	if !results["good"].Loaded {
		t.Fatal("expected good extension to load despite bad's failure")
	}
}

func TestUnload_RefusesWhenDependentsRemain(t *testing.T) {
	m := newTestManager()
	m.Register("a", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "a", deps: []string{"b"}}, nil
	})
	m.Register("b", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "b"}, nil
	})
	if _, err := m.LoadAll(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.Unload(context.Background(), "b"); !errors.Is(err, ErrHasDependents) {
		t.Fatalf("expected ErrHasDependents, got %v", err)
	}
	if err := m.Unload(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error unloading a: %v", err)
	}
	if err := m.Unload(context.Background(), "b"); err != nil {
		t.Fatalf("unexpected error unloading b after a is gone: %v", err)
	}
}

func TestCleanupAll_RunsInReverseLoadOrder(t *testing.T) {
	m := newTestManager()
	var calls []string
	m.Register("a", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "a", deps: []string{"b"}, calls: &calls}, nil
	})
	m.Register("b", func(cfg map[string]any) (Extension, error) {
		return stubExtension{name: "b", calls: &calls}, nil
	})
	if _, err := m.LoadAll(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls = nil

	m.CleanupAll(context.Background())

	if len(calls) != 2 || calls[0] != "cleanup:a" || calls[1] != "cleanup:b" {
		t.Fatalf("expected cleanup in reverse load order [cleanup:a cleanup:b], got %v", calls)
	}
	if len(m.LoadedNames()) != 0 {
		t.Fatal("expected no extensions loaded after CleanupAll")
	}
}
