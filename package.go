// Package rely is a lightweight dependency injection container
// with lazy module resolution.
//
// Dependencies are registered by name, as a value, a factory, an
// alias to another name, or a reference to a module file. They are
// resolved on the first request and cached, so a factory runs and
// a module file loads at most once per container.
//
// Unlike the type matching of go.uber.org/dig, dependencies are
// matched by name, and a factory declares the names of the values
// it requires:
//
//  1. Needs("a", "b") injects the values named "a" and "b" as the
//     first and second argument. It is the preferred form.
//  2. Derive takes the names from the parameter list in the source
//     of the factory. A parameter may be decorated by a leading or
//     trailing underscore, which is trimmed, e.g. "rely_" injects
//     the dependency "rely".
//  3. NoDeps calls the factory without arguments.
//
// The name "rely" always resolves to the container itself, names
// starting with "/", "./" or "../" denote module files relative
// to the base directory, and unknown names are imported by the
// loader unless the auto require option is disabled.
package rely

import (
	"github.com/aegistudio/rely/core"
)

var (
	ErrDependencyNotFound    = core.ErrDependencyNotFound
	ErrCyclicResolution      = core.ErrCyclicResolution
	ErrSyncResolutionBlocked = core.ErrSyncResolutionBlocked
	ErrInvalidConfiguration  = core.ErrInvalidConfiguration
	ErrInvalidName           = core.ErrInvalidName
	ErrInvalidFactory        = core.ErrInvalidFactory
)

// Mode is just a simple forwarding of core.Mode.
type Mode = core.Mode

const (
	Sync  = core.Sync
	Async = core.Async
)

// SelfToken is the name resolving to the container.
const SelfToken = core.DefaultSelfToken

// Future is just a simple forwarding of core.Future.
type Future = core.Future

// Injectable is just a simple forwarding of core.Injectable.
type Injectable = core.Injectable

// Entry is just a simple forwarding of core.Entry.
type Entry = core.Entry

// Deps declares the dependencies of a factory.
type Deps struct {
	names  []string
	derive bool
}

// Needs declares the dependencies by name, in the order of the
// factory's parameters.
func Needs(names ...string) Deps {
	return Deps{names: append([]string{}, names...)}
}

var (
	// Derive takes the dependencies from the parameter names
	// of the factory.
	Derive = Deps{derive: true}

	// NoDeps calls the factory without arguments.
	NoDeps = Deps{}
)

// Factory makes an injectable from fn, which is stored as a
// factory when passed to Container.Set.
func Factory(fn interface{}, deps Deps) *Injectable {
	return &Injectable{
		Func:   fn,
		Deps:   deps.names,
		Derive: deps.derive,
	}
}

// Literal makes an entry storing v as a resolved value. It is
// how a string is stored without becoming an alias.
func Literal(v interface{}) Entry {
	return core.ValueEntry(v)
}

// Alias makes an entry resolving to the dependency target.
func Alias(target string) Entry {
	return core.AliasEntry(target)
}

// File makes an entry referencing the module file at path,
// relative to the base directory unless absolute.
func File(path string) Entry {
	return core.FileEntry(path)
}
