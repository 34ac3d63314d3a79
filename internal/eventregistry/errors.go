package eventregistry

import "errors"

// ErrTypeMismatch is returned by Registry.Validate and surfaces from
// EventBus.Emit when a payload's concrete type does not match the type
// registered for that event name.
var ErrTypeMismatch = errors.New("eventregistry: payload type mismatch")
