// Package prompt implements the Prompt manager: it loads ".md" template
// files, substitutes {{variable}} placeholders, and extracts named markdown
// sections for callers that only want part of a larger template. The core
// ships a minimal embedded template set (internal/prompt/templates); a
// deployment can point PromptDir at an on-disk directory of the same shape
// to override or add templates without a rebuild, mirroring
// internal/config.Load's "write-then-read-back" on-disk template idiom. The
// manager carries no domain prompt text of its own beyond the mechanism.
package prompt

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

//go:embed templates
var embedded embed.FS

// ErrTemplateNotFound is returned when a named template cannot be located in
// either the disk override directory or the embedded default set.
var ErrTemplateNotFound = fmt.Errorf("prompt: template not found")

// ErrSectionNotFound is returned by ExtractSection when sectionName has no
// matching markdown heading in the template.
var ErrSectionNotFound = fmt.Errorf("prompt: section not found")

// ErrMissingVariable is returned by Render (not RenderSafe) when a
// placeholder has no corresponding entry in vars.
var ErrMissingVariable = fmt.Errorf("prompt: missing variable")

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Manager loads and renders markdown prompt templates.
type Manager struct {
	logger *slog.Logger
	diskFS fs.FS // nil when no on-disk override directory is configured

	mu    sync.RWMutex
	cache map[string]string
}

// New returns a Manager. diskDir, if non-empty, is checked before the
// embedded template set on every lookup; an empty diskDir uses only the
// built-in templates.
func New(diskDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger, cache: make(map[string]string)}
	if diskDir != "" {
		if _, err := os.Stat(diskDir); err == nil {
			m.diskFS = os.DirFS(diskDir)
		} else {
			logger.Warn("prompt template directory not found, using built-in templates only", "dir", diskDir)
		}
	}
	return m
}

// load returns the raw contents of name (without a leading slash; ".md" is
// appended automatically if absent), preferring the disk override.
func (m *Manager) load(name string) (string, error) {
	path := name
	if !strings.HasSuffix(path, ".md") {
		path += ".md"
	}

	m.mu.RLock()
	if cached, ok := m.cache[path]; ok {
		m.mu.RUnlock()
		return cached, nil
	}
	m.mu.RUnlock()

	var data []byte
	var err error
	if m.diskFS != nil {
		data, err = fs.ReadFile(m.diskFS, path)
	}
	if m.diskFS == nil || err != nil {
		data, err = embedded.ReadFile(filepath.Join("templates", path))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	content := string(data)
	m.mu.Lock()
	m.cache[path] = content
	m.mu.Unlock()
	return content, nil
}

// Render substitutes every {{variable}} placeholder in templateName with its
// value from vars. A placeholder with no matching key is an error.
func (m *Manager) Render(templateName string, vars map[string]any) (string, error) {
	tmpl, err := m.load(templateName)
	if err != nil {
		return "", err
	}
	return substitute(tmpl, vars, false)
}

// RenderSafe behaves like Render but tolerates missing variables by leaving
// the placeholder text ("{{name}}") unchanged rather than erroring, for
// callers that render partially-known templates (e.g. a provider rendering
// a shared template before all of its variables are available).
func (m *Manager) RenderSafe(templateName string, vars map[string]any) (string, error) {
	tmpl, err := m.load(templateName)
	if err != nil {
		return "", err
	}
	return substitute(tmpl, vars, true)
}

// ExtractSection returns the content of the markdown section headed by
// "# sectionName" or "## sectionName" (case-insensitive) within file, up to
// the next heading of equal or shallower depth, with vars substituted in
// (missing variables tolerated, as RenderSafe). ctx is accepted for
// signature symmetry with the rest of the ancillary services and is not
// otherwise used since template loading is local and synchronous.
func (m *Manager) ExtractSection(_ context.Context, file, sectionName string, vars map[string]any) (string, error) {
	tmpl, err := m.load(file)
	if err != nil {
		return "", err
	}

	section, err := extractSection(tmpl, sectionName)
	if err != nil {
		return "", err
	}
	return substitute(section, vars, true)
}

var headingLine = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)

func extractSection(doc, name string) (string, error) {
	matches := headingLine.FindAllStringSubmatchIndex(doc, -1)
	target := strings.ToLower(strings.TrimSpace(name))

	for i, match := range matches {
		level := match[3] - match[2]
		heading := strings.ToLower(strings.TrimSpace(doc[match[4]:match[5]]))
		if heading != target {
			continue
		}

		start := match[1]
		end := len(doc)
		for _, next := range matches[i+1:] {
			nextLevel := next[3] - next[2]
			if nextLevel <= level {
				end = next[0]
				break
			}
		}
		return strings.TrimSpace(doc[start:end]), nil
	}
	return "", fmt.Errorf("%w: %q", ErrSectionNotFound, name)
}

func substitute(tmpl string, vars map[string]any, tolerateMissing bool) (string, error) {
	var missing []string
	var buf bytes.Buffer

	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(tmpl, -1) {
		buf.WriteString(tmpl[last:m[0]])
		key := tmpl[m[2]:m[3]]
		val, ok := vars[key]
		switch {
		case ok:
			fmt.Fprintf(&buf, "%v", val)
		case tolerateMissing:
			buf.WriteString(tmpl[m[0]:m[1]])
		default:
			missing = append(missing, key)
		}
		last = m[1]
	}
	buf.WriteString(tmpl[last:])

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}
	return buf.String(), nil
}
