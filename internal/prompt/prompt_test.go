package prompt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_Render(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greeting.md"), []byte("Hello {{name}}!"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(dir, nil)

	out, err := m.Render("greeting", map[string]any{"name": "Ame"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello Ame!" {
		t.Fatalf("got %q", out)
	}
}

func TestManager_Render_MissingVariableErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greeting.md"), []byte("Hello {{name}}!"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(dir, nil)

	if _, err := m.Render("greeting", nil); !errors.Is(err, ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable, got %v", err)
	}
}

func TestManager_RenderSafe_LeavesPlaceholder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greeting.md"), []byte("Hello {{name}}, {{unset}}!"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(dir, nil)

	out, err := m.RenderSafe("greeting", map[string]any{"name": "Ame"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello Ame, {{unset}}!" {
		t.Fatalf("got %q", out)
	}
}

func TestManager_BuiltinTemplate(t *testing.T) {
	m := New("", nil)

	out, err := m.Render("decision/llm_structured", map[string]any{"text": "hi there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty rendered template")
	}
}

func TestManager_ExtractSection(t *testing.T) {
	dir := t.TempDir()
	doc := "# Title\n\nintro\n\n## System\nYou are {{role}}.\n\n## Notes\nignored\n"
	if err := os.WriteFile(filepath.Join(dir, "doc.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(dir, nil)

	out, err := m.ExtractSection(context.Background(), "doc", "System", map[string]any{"role": "a helper"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "You are a helper." {
		t.Fatalf("got %q", out)
	}
}

func TestManager_ExtractSection_NotFound(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# Title\nbody\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(dir, nil)

	if _, err := m.ExtractSection(context.Background(), "doc", "Missing", nil); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestManager_UnknownTemplate(t *testing.T) {
	m := New("", nil)
	if _, err := m.Render("does/not/exist", nil); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}
