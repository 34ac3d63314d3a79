package registry

import "errors"

// ErrUnknownProvider is returned by Create<Layer> when no factory has been
// registered for the requested name.
var ErrUnknownProvider = errors.New("registry: unknown provider")
