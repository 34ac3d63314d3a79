package output

import "errors"

// ErrAlreadyStarted is returned by SetupAll if the manager's providers are
// already running.
var ErrAlreadyStarted = errors.New("output: manager already started")
