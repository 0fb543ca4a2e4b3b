// Package loader is the import collaborator of rely. It resolves
// symbolic module names against the host and loads module files
// from disk.
//
// Module files are recognized by extension:
//
//  1. ".go" files are interpreted with yaegi. They must be in
//     package main and define Exports. If Exports is a function
//     and the file also defines Rely, as true or as a []string,
//     the function is returned as a factory to be injected.
//  2. ".star" files are executed as Starlark. The global exports,
//     or else all globals, make up the module. A global rely set
//     to True or to a list of names marks exports as a factory.
//  3. ".yaml", ".yml" and ".json" files are decoded as data.
//  4. ".hcl" files are decoded as a set of attributes.
//
// A file is loaded at most once per concurrent import, the result
// is cached by the registry and not by the loader.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aegistudio/rely/core"
	"github.com/aegistudio/rely/internal/ctxlog"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/sync/singleflight"
)

// Package is the set of exported symbols of a host package.
type Package map[string]interface{}

// Loader implements core.Importer.
type Loader struct {
	baseDir string
	logger  *slog.Logger
	stdlib  bool

	mu      sync.RWMutex
	modules map[string]interface{}

	group singleflight.Group
}

// Option is the option for creating a loader.
type Option func(*Loader)

// WithBaseDirectory sets the directory relative paths and bare
// module files resolve against.
func WithBaseDirectory(dir string) Option {
	return func(l *Loader) {
		l.baseDir = dir
	}
}

// WithLogger sets the logger of the loader.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithStdlib sets whether Go standard library packages can be
// imported by their path, e.g. "strings".
func WithStdlib(enabled bool) Option {
	return func(l *Loader) {
		l.stdlib = enabled
	}
}

// New creates a loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		stdlib:  true,
		modules: make(map[string]interface{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if wd, err := os.Getwd(); err == nil {
		l.baseDir = wd
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register makes value importable under the symbolic name.
func (l *Loader) Register(name string, value interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[name] = value
}

// Extensions lists the module file extensions in lookup order.
var Extensions = []string{".go", ".star", ".yaml", ".yml", ".json", ".hcl"}

// Import loads the module identified by id.
//
// Paths are loaded as files. Other names are looked up among the
// registered modules, then the Go standard library packages, then
// as a module file named after id in the base directory.
func (l *Loader) Import(ctx context.Context, id string) (interface{}, error) {
	if core.IsPath(id) || filepath.IsAbs(id) {
		return l.ImportFile(ctx, core.AbsPath(l.baseDir, id))
	}
	l.mu.RLock()
	value, ok := l.modules[id]
	l.mu.RUnlock()
	if ok {
		return value, nil
	}
	if pkg, ok := l.hostPackage(id); ok {
		return pkg, nil
	}
	for _, ext := range Extensions {
		candidate := filepath.Join(l.baseDir, id+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return l.ImportFile(ctx, candidate)
		}
	}
	return nil, fmt.Errorf("cannot find module %q: %w", id, core.ErrDependencyNotFound)
}

// hostPackage returns the exported symbols of a standard library
// package known to the interpreter.
func (l *Loader) hostPackage(id string) (Package, bool) {
	if !l.stdlib {
		return nil, false
	}
	symbols, ok := stdlib.Symbols[id+"/"+path.Base(id)]
	if !ok {
		return nil, false
	}
	pkg := make(Package, len(symbols))
	for name, value := range symbols {
		if !value.IsValid() || !value.CanInterface() {
			continue
		}
		pkg[name] = value.Interface()
	}
	return pkg, true
}

// ImportFile loads the module file at the absolute path filename.
// Concurrent imports of the same file share one load.
func (l *Loader) ImportFile(ctx context.Context, filename string) (interface{}, error) {
	value, err, shared := l.group.Do(filename, func() (interface{}, error) {
		return l.loadFile(ctx, filename)
	})
	if shared {
		ctxlog.Or(ctx, l.logger).Debug("shared module load", "file", filename)
	}
	return value, err
}

func (l *Loader) loadFile(ctx context.Context, filename string) (interface{}, error) {
	code, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot find module %q: %w",
				filename, core.ErrDependencyNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	ctxlog.Or(ctx, l.logger).Debug("loading module", "file", filename)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".go":
		return loadGoModule(filename, code)
	case ".star":
		return loadStarlarkModule(ctx, filename, code)
	case ".yaml", ".yml", ".json":
		return loadDataModule(filename, code)
	case ".hcl":
		return loadHCLModule(filename, code)
	default:
		return nil, fmt.Errorf("%s: unsupported module extension %q (supported: %s)",
			filename, ext, strings.Join(sortedExtensions(), ", "))
	}
}

func sortedExtensions() []string {
	result := append([]string(nil), Extensions...)
	sort.Strings(result)
	return result
}
