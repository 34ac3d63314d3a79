// Package fileio gives the LLM a small sandboxed file store: overlay
// snippets, episode notes, generated text. Everything lives under one base
// directory; paths that resolve outside it are refused.
//
// Two tools are exported via [NewTools]:
//   - "write_file" — store text, creating parent directories as needed.
//   - "read_file"  — fetch text back, capped at maxReadBytes.
//
// All handlers are safe for concurrent use.
package fileio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mai-with-u/amaidesu/internal/mcp/tools"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// maxReadBytes caps read_file responses; anything bigger than 1 MiB does
// not belong in an LLM context window.
const maxReadBytes = 1 << 20

// store binds both handlers to one sandbox root.
type store struct {
	base string
}

// resolve maps a caller-supplied relative path into the sandbox,
// rejecting absolute paths and anything that escapes it.
func (s store) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("fileio: path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("fileio: path %q must be relative to the file store", rel)
	}
	base := filepath.Clean(s.base)
	full := filepath.Join(base, rel)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("fileio: path %q escapes the file store", rel)
	}
	return full, nil
}

func (s store) write(ctx context.Context, args string) (string, error) {
	var a struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("fileio: write_file: parsing arguments: %w", err)
	}
	full, err := s.resolve(a.Path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("fileio: write_file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("fileio: write_file: creating directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(a.Content), 0o644); err != nil {
		return "", fmt.Errorf("fileio: write_file: %w", err)
	}

	out, err := json.Marshal(map[string]any{"path": a.Path, "bytes_written": len(a.Content)})
	if err != nil {
		return "", fmt.Errorf("fileio: write_file: encoding result: %w", err)
	}
	return string(out), nil
}

func (s store) read(ctx context.Context, args string) (string, error) {
	var a struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("fileio: read_file: parsing arguments: %w", err)
	}
	full, err := s.resolve(a.Path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("fileio: read_file: %w", err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("fileio: read_file: %w", err)
	}
	if info.Size() > maxReadBytes {
		return "", fmt.Errorf("fileio: read_file: %q is %d bytes, over the %d limit", a.Path, info.Size(), maxReadBytes)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("fileio: read_file: %w", err)
	}

	out, err := json.Marshal(map[string]string{"path": a.Path, "content": string(data)})
	if err != nil {
		return "", fmt.Errorf("fileio: read_file: encoding result: %w", err)
	}
	return string(out), nil
}

// NewTools builds the tool pair sandboxed to baseDir.
func NewTools(baseDir string) []tools.Tool {
	s := store{base: baseDir}

	pathProperty := map[string]any{
		"type":        "string",
		"description": "Relative path inside the file store (e.g. notes/today.md). Paths that resolve outside the store are rejected.",
	}

	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "write_file",
				Description: "Write text to a file in the sandboxed store, creating parent directories as needed. Use for notes, episode summaries, or generated text.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": pathProperty,
						"content": map[string]any{
							"type":        "string",
							"description": "Text content to store.",
						},
					},
					"required": []string{"path", "content"},
				},
				EstimatedDurationMs: 20,
				MaxDurationMs:       100,
				Idempotent:          true,
			},
			Handler:     s.write,
			DeclaredP50: 20,
			DeclaredMax: 100,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "read_file",
				Description: "Read a text file from the sandboxed store. Files over 1 MiB are refused.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": pathProperty,
					},
					"required": []string{"path"},
				},
				EstimatedDurationMs: 20,
				MaxDurationMs:       100,
				Idempotent:          true,
				CacheableSeconds:    5,
			},
			Handler:     s.read,
			DeclaredP50: 20,
			DeclaredMax: 100,
		},
	}
}
