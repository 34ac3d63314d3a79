package config

import "errors"

// ErrConfig wraps every validation failure Validate produces, so callers can
// use errors.Is(err, config.ErrConfig) without matching on message text.
var ErrConfig = errors.New("config: invalid configuration")
