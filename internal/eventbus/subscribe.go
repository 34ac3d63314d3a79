package eventbus

import (
	"context"
	"fmt"
)

// Subscribe registers a typed handler for eventName. The bus type-asserts
// the stored payload to T before calling handler; on mismatch the error is
// logged and only this handler is skipped — other subscribers for the same
// emit still run. This is a package-level function, not a method, because
// Go does not allow a generic method on a non-generic receiver type.
func Subscribe[T any](bus *Bus, eventName string, handler func(ctx context.Context, payload T, source string) error, priority int) string {
	wrapped := func(ctx context.Context, payload any, source string) error {
		typed, ok := payload.(T)
		if !ok {
			return fmt.Errorf("eventbus: subscriber for %q expected %T, got %T", eventName, typed, payload)
		}
		return handler(ctx, typed, source)
	}
	return bus.On(eventName, wrapped, priority)
}
