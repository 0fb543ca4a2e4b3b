package core

import (
	"fmt"

	"github.com/aegistudio/rely/paramnames"
)

// Kind is the shape of a registry entry.
type Kind int

const (
	KindValue = Kind(iota)
	KindFactory
	KindAlias
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFactory:
		return "factory"
	case KindAlias:
		return "alias"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// State is the resolution state of a registry entry.
type State int

const (
	Unresolved = State(iota)
	Resolving
	Resolved
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Injectable is a function whose arguments are dependencies to
// be resolved and injected before it is called.
//
// Deps, when non-nil, lists the dependency names verbatim and
// always takes precedence. Otherwise Derive asks for the names
// to be derived from the declared parameter names of Func, read
// from Source when present or from the source file of Func. When
// neither is set, Func is called without arguments.
//
// Dir, when set, is the directory relative path dependencies
// are resolved against instead of the base directory.
type Injectable struct {
	Func   interface{}
	Deps   []string
	Derive bool
	Source string
	Dir    string
}

// Dependencies returns the ordered dependency names of the
// injectable function.
func (i *Injectable) Dependencies() ([]string, error) {
	if i.Deps != nil {
		return i.Deps, nil
	}
	if !i.Derive {
		return nil, nil
	}
	var names []string
	var err error
	if i.Source != "" {
		names, err = paramnames.Extract(i.Source)
	} else {
		names, err = paramnames.FromFunc(i.Func)
	}
	if err != nil {
		return nil, fmt.Errorf("derive parameter names: %w", err)
	}
	return names, nil
}

// Entry is the definition stored under a name.
type Entry struct {
	Kind    Kind
	Value   interface{}
	Factory *Injectable
	Target  string
	Path    string
}

// ValueEntry creates a resolved entry.
func ValueEntry(v interface{}) Entry {
	return Entry{Kind: KindValue, Value: v}
}

// FactoryEntry creates an entry invoking the injectable on
// first access.
func FactoryEntry(inj *Injectable) Entry {
	return Entry{Kind: KindFactory, Factory: inj}
}

// AliasEntry creates an entry resolving to another name.
func AliasEntry(target string) Entry {
	return Entry{Kind: KindAlias, Target: target}
}

// FileEntry creates an entry importing the module at path.
func FileEntry(path string) Entry {
	return Entry{Kind: KindFile, Path: path}
}

func (e Entry) String() string {
	switch e.Kind {
	case KindValue:
		return fmt.Sprintf("value(%T)", e.Value)
	case KindFactory:
		if e.Factory == nil {
			return "factory(nil)"
		}
		return fmt.Sprintf("factory(%T)", e.Factory.Func)
	case KindAlias:
		return fmt.Sprintf("alias(%s)", e.Target)
	case KindFile:
		return fmt.Sprintf("file(%s)", e.Path)
	default:
		return "unknown"
	}
}
