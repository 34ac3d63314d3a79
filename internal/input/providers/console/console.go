// Package console implements an InputProvider that reads lines from an
// io.Reader (stdin in production) and normalizes each non-empty line into a
// text NormalizedMessage. It is the default input provider in the example
// config and the "console -> mock decision -> mock output" happy-path
// scenario.
package console

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// Name is the provider's registration name.
const Name = "console_input"

// Config controls the console provider.
type Config struct {
	// DefaultImportance is assigned to every message (default 0.5).
	DefaultImportance float64
}

// Provider reads lines from Reader (os.Stdin by default) and yields one
// NormalizedMessage per non-empty line.
type Provider struct {
	cfg    Config
	reader io.Reader

	cancel context.CancelFunc
}

// New constructs the console provider reading from os.Stdin; the provider
// context is not consulted (NewWithReader builds one on another reader).
func New(cfg map[string]any, _ provider.Context) (provider.InputProvider, error) {
	importance := 0.5
	if v, ok := cfg["default_importance"].(float64); ok {
		importance = v
	}
	return &Provider{cfg: Config{DefaultImportance: importance}, reader: os.Stdin}, nil
}

// NewWithReader builds a Provider reading from r, for tests and for
// programmatic embedding (e.g. feeding scripted input).
func NewWithReader(r io.Reader, cfg Config) *Provider {
	if cfg.DefaultImportance <= 0 {
		cfg.DefaultImportance = 0.5
	}
	return &Provider{cfg: cfg, reader: r}
}

func (p *Provider) Start(ctx context.Context) error {
	_, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return nil
}

func (p *Provider) Stream(ctx context.Context) (<-chan types.NormalizedMessage, <-chan error) {
	out := make(chan types.NormalizedMessage)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		scanner := bufio.NewScanner(p.reader)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()
			if line == "" {
				continue
			}

			msg := types.NormalizedMessage{
				Text:       line,
				Source:     Name,
				DataType:   types.DataTypeText,
				Importance: p.cfg.DefaultImportance,
				Timestamp:  time.Now(),
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return out, errs
}

func (p *Provider) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.Cleanup()
}

func (p *Provider) Cleanup() error { return nil }

// RegistrationInfo returns this provider's registration metadata.
func (p *Provider) RegistrationInfo() provider.RegistrationInfo {
	return provider.RegistrationInfo{Layer: "input", Name: Name, Source: "internal/input/providers/console"}
}
