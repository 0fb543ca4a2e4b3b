// Package autoload populates a registry from a file pattern.
//
// Every file matched by the pattern is registered as a reference
// to an external module, named after its basename without the
// extension. Nothing is imported until the name is requested.
package autoload

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aegistudio/rely/core"
)

// Expander expands a file pattern into file paths.
type Expander interface {
	Expand(pattern string) ([]string, error)
}

// Registrar is where the file references are registered.
type Registrar interface {
	Set(name string, entry core.Entry) error
}

// FileGlob expands patterns with filepath.Glob. Relative patterns
// are taken relative to Base, and the results are sorted.
type FileGlob struct {
	Base string
}

// Expand implements Expander.
func (g FileGlob) Expand(pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(g.Base, pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// NameOf returns the dependency name of the file at path.
func NameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load registers every file matched by pattern, in the order of
// the expander, and returns the registered names. A later file
// with the same name replaces an earlier one, and files whose
// name would be empty, like ".env", are skipped.
func Load(registrar Registrar, expander Expander, pattern string) ([]string, error) {
	paths, err := expander.Expand(pattern)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		name := NameOf(path)
		if name == "" {
			continue
		}
		if err := registrar.Set(name, core.FileEntry(path)); err != nil {
			return nil, fmt.Errorf("register %s: %w", path, err)
		}
		names = append(names, name)
	}
	return names, nil
}
