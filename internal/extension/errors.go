package extension

import "errors"

// ErrCyclicDependency is raised when the declared extension-dependency graph
// contains a cycle; no extension in the batch is loaded.
var ErrCyclicDependency = errors.New("extension: cyclic dependency")

// ErrHasDependents is returned by Unload when another loaded extension still
// declares a dependency on the one being removed.
var ErrHasDependents = errors.New("extension: has dependents")

// ErrNotRegistered is returned when a name has no factory registered.
var ErrNotRegistered = errors.New("extension: not registered")

// ErrNotLoaded is returned by operations that require an already-loaded
// extension (Unload, Reload).
var ErrNotLoaded = errors.New("extension: not loaded")
