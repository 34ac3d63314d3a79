package input_test

import (
	"context"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/internal/eventbus"
	"github.com/Mai-with-u/amaidesu/internal/eventregistry"
	"github.com/Mai-with-u/amaidesu/internal/input"
	"github.com/Mai-with-u/amaidesu/internal/input/providers/mock"
	"github.com/Mai-with-u/amaidesu/internal/provider"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

func TestManager_PublishesNormalizedMessage(t *testing.T) {
	bus := eventbus.New(nil, nil)
	m := input.NewManager(bus, nil, nil)

	mp := mock.New()

	received := make(chan eventregistry.DataMessagePayload, 1)
	eventbus.Subscribe(bus, eventregistry.DataMessage, func(_ context.Context, payload eventregistry.DataMessagePayload, _ string) error {
		received <- payload
		return nil
	}, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.StartAll(ctx, []provider.InputProvider{mp}); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	mp.Send(types.NormalizedMessage{
		Text:       "hello",
		Source:     "console_input",
		DataType:   types.DataTypeText,
		Importance: 0.5,
		Timestamp:  time.Now(),
	})

	select {
	case payload := <-received:
		if payload.Message.Text != "hello" {
			t.Errorf("got text %q, want %q", payload.Message.Text, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("data.message was never published")
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if mp.CallCountStop == 0 {
		t.Error("provider.Stop was never called")
	}
}

func TestManager_DoubleStartRejected(t *testing.T) {
	bus := eventbus.New(nil, nil)
	m := input.NewManager(bus, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.StartAll(ctx, nil); err != nil {
		t.Fatalf("first StartAll: %v", err)
	}
	if err := m.StartAll(ctx, nil); err != input.ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	_ = m.StopAll(context.Background())
}
