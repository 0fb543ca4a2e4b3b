// Package core is the resolution and caching engine of rely. It
// knows nothing about files or glob patterns: it keeps a registry
// of named entries, turns a requested name into a value exactly
// once, and delegates anything it cannot find to an Importer.
//
// An entry is in one of four shapes: a resolved value, a factory
// requiring its own dependencies, an alias to another name, or a
// reference to an external module. Resolving an entry replaces it
// with the value it produced, so later lookups never invoke the
// factory or import the module again.
//
// Resolution is available in two modes. The synchronous mode runs
// on the caller's goroutine and refuses to wait for a resolution
// in flight elsewhere. The asynchronous mode returns a Future, and
// concurrent requests for the same name share a single flight.
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyNotFound is returned when a name is neither
	// registered nor importable.
	ErrDependencyNotFound = errors.New("dependency not found")

	// ErrCyclicResolution is returned when a name is requested
	// again while its own resolution is waiting on the requester.
	ErrCyclicResolution = errors.New("cyclic resolution")

	// ErrSyncResolutionBlocked is returned when a synchronous
	// resolution requests a name that is in flight elsewhere.
	ErrSyncResolutionBlocked = errors.New("dependency is still resolving")

	// ErrInvalidConfiguration is returned when the setup is not a
	// mapping from names to definitions.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidName is returned for empty dependency names.
	ErrInvalidName = errors.New("invalid dependency name")

	// ErrInvalidFactory is returned when a factory is not a func
	// or cannot accept the resolved arguments.
	ErrInvalidFactory = errors.New("invalid factory")
)

// ErrResolve indicates an error while resolving a name.
//
// Resolve errors stack over one another when a factory fails to
// resolve its dependencies, so the chain of Name indicates the
// path from the requested name to the failing one.
type ErrResolve struct {
	Name string
	Err  error
}

func (e *ErrResolve) Error() string {
	return fmt.Sprintf("dependency %q: %v", e.Name, e.Err)
}

func (e *ErrResolve) Unwrap() error {
	return e.Err
}

// ErrImport indicates the importer failed to load a module.
type ErrImport struct {
	ID  string
	Err error
}

func (e *ErrImport) Error() string {
	return fmt.Sprintf("import %q: %v", e.ID, e.Err)
}

func (e *ErrImport) Unwrap() error {
	return e.Err
}
