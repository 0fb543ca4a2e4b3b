package core

import (
	"path/filepath"
	"strings"
)

// Class is the interpretation of a requested name.
type Class int

const (
	// ClassOpaque names are delegated to the importer.
	ClassOpaque = Class(iota)

	// ClassSelf is the token denoting the container itself.
	ClassSelf

	// ClassPath names are file paths relative to the base
	// directory, unless already absolute.
	ClassPath

	// ClassAlias names are registered as aliases of another.
	ClassAlias

	// ClassRegistered names have any other registered entry.
	ClassRegistered
)

func (c Class) String() string {
	switch c {
	case ClassOpaque:
		return "opaque"
	case ClassSelf:
		return "self"
	case ClassPath:
		return "path"
	case ClassAlias:
		return "alias"
	case ClassRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

// IsPath reports whether name starts with "/", "./" or "../".
func IsPath(name string) bool {
	return strings.HasPrefix(name, "/") ||
		strings.HasPrefix(name, "./") ||
		strings.HasPrefix(name, "../")
}

// Classify decides how name is to be resolved. The lookup
// reports the entry registered under a name, if any.
func Classify(
	name, selfToken string, lookup func(string) (Entry, bool),
) Class {
	if name == selfToken {
		return ClassSelf
	}
	if IsPath(name) {
		return ClassPath
	}
	if lookup != nil {
		if entry, ok := lookup(name); ok {
			if entry.Kind == KindAlias {
				return ClassAlias
			}
			return ClassRegistered
		}
	}
	return ClassOpaque
}

// AbsPath resolves a path name against base.
func AbsPath(base, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(base, name)
}
