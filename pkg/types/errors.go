package types

import "errors"

// Validation errors for the core domain types. Each is wrapped with
// fmt.Errorf by callers that need additional context (field values, source).
var (
	errEmptyText         = errors.New("types: text must not be empty")
	errImportanceRange   = errors.New("types: importance must be in [0,1]")
	errUnknownDataType   = errors.New("types: unknown data type")
	errUnknownEmotion    = errors.New("types: unknown emotion")
	errUnknownActionType = errors.New("types: unknown action type")
	errPriorityRange     = errors.New("types: priority must be in [0,100]")
)
