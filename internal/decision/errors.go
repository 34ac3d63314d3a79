package decision

import "errors"

// ErrProviderNotRegistered names the "no factory for this provider name"
// condition. Setup and Switch do not return it: they wrap the error the
// Provider Registry returns for an unknown name.
var ErrProviderNotRegistered = errors.New("decision: provider not registered")

// ErrNoActiveProvider names the "Setup has never succeeded" condition.
// Decide returns no error; with no active provider it logs a warning and
// returns.
var ErrNoActiveProvider = errors.New("decision: no active provider")
