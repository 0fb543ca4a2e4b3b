package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aegistudio/rely/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// Importer loads external modules by identifier, which is either
// a symbolic module name or an absolute file path.
type Importer interface {
	Import(ctx context.Context, id string) (interface{}, error)
}

// Mode selects synchronous or asynchronous resolution.
type Mode int

const (
	Sync = Mode(iota)
	Async
)

// DefaultSelfToken is the name resolving to the container.
const DefaultSelfToken = "rely"

// Resolver turns requested names into values, caching them in
// its registry.
type Resolver struct {
	registry    *Registry
	importer    Importer
	baseDir     string
	autoRequire bool
	selfToken   string
	self        interface{}
	logger      *slog.Logger
}

// Option is the option for creating a resolver.
type Option func(*Resolver)

// Module aggregates a set of options as a single option.
func Module(opts ...Option) Option {
	return func(r *Resolver) {
		for _, opt := range opts {
			opt(r)
		}
	}
}

// WithImporter sets the importer of external modules.
func WithImporter(importer Importer) Option {
	return func(r *Resolver) {
		r.importer = importer
	}
}

// WithBaseDirectory sets the directory relative paths resolve
// against.
func WithBaseDirectory(dir string) Option {
	return func(r *Resolver) {
		r.baseDir = dir
	}
}

// WithAutoRequire sets whether unknown names are imported.
func WithAutoRequire(autoRequire bool) Option {
	return func(r *Resolver) {
		r.autoRequire = autoRequire
	}
}

// WithSelf sets the value the self token resolves to.
func WithSelf(token string, self interface{}) Option {
	return func(r *Resolver) {
		r.selfToken = token
		r.self = self
	}
}

// WithLogger sets the logger of the resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over the registry.
func NewResolver(registry *Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry:    registry,
		autoRequire: true,
		selfToken:   DefaultSelfToken,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if wd, err := os.Getwd(); err == nil {
		r.baseDir = wd
	}
	Module(opts...)(r)
	if r.self == nil {
		r.self = r
	}
	return r
}

// Registry returns the registry of the resolver.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// BaseDirectory returns the directory relative paths resolve
// against.
func (r *Resolver) BaseDirectory() string {
	return r.baseDir
}

// Classify classifies name against the registry.
func (r *Resolver) Classify(name string) Class {
	return Classify(name, r.selfToken, func(name string) (Entry, bool) {
		entry, _, ok := r.registry.Lookup(name)
		return entry, ok
	})
}

// Resolve resolves name synchronously.
func (r *Resolver) Resolve(ctx context.Context, name string) (interface{}, error) {
	return r.resolve(ctx, name, false)
}

// ResolveAsync resolves name on another goroutine.
//
// The resolution is detached from the cancellation of ctx: once
// started it runs to completion, and concurrent resolutions of
// the same name share one flight.
func (r *Resolver) ResolveAsync(ctx context.Context, name string) *Future {
	if name == r.selfToken {
		return completed(r.self, nil)
	}
	f := newFuture()
	ctx = context.WithoutCancel(ctx)
	go func() {
		f.complete(r.resolve(ctx, name, true))
	}()
	return f
}

// ResolveMany resolves names in the specified mode.
//
// The synchronous mode resolves them in order and stops at the
// first failure. The asynchronous mode resolves them concurrently,
// waits for all of them and reports the first failure.
func (r *Resolver) ResolveMany(
	ctx context.Context, names []string, mode Mode,
) ([]interface{}, error) {
	if mode == Async {
		return r.resolveAll(context.WithoutCancel(ctx), names, true)
	}
	return r.resolveAll(ctx, names, false)
}

func (r *Resolver) resolveAll(
	ctx context.Context, names []string, async bool,
) ([]interface{}, error) {
	values := make([]interface{}, len(names))
	if !async || len(names) < 2 {
		for i, name := range names {
			value, err := r.resolve(ctx, name, async)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return values, nil
	}
	var group errgroup.Group
	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			value, err := r.resolve(ctx, name, true)
			if err != nil {
				return err
			}
			values[i] = value
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *Resolver) resolve(
	ctx context.Context, name string, async bool,
) (interface{}, error) {
	if name == "" {
		return nil, &ErrResolve{Name: name, Err: ErrInvalidName}
	}
	key := name
	importable := r.autoRequire
	switch r.Classify(name) {
	case ClassSelf:
		return r.self, nil
	case ClassAlias:
		if r.aliasesSelf(name) {
			return r.self, nil
		}
	case ClassPath:
		key = AbsPath(r.baseDir, name)
		importable = true
	}
	value, err := r.resolveKey(ctx, key, async, importable)
	if err != nil {
		return nil, &ErrResolve{Name: name, Err: err}
	}
	return value, nil
}

func (r *Resolver) resolveKey(
	ctx context.Context, key string, async, importable bool,
) (interface{}, error) {
	parent := currentFlight(ctx)
	t, err := r.registry.acquire(key, parent, async, importable)
	if err != nil {
		return nil, err
	}
	if t.resolved {
		return t.value, nil
	}
	if t.join != nil {
		defer r.registry.release(parent, t.join)
		return t.join.future.Wait(ctx)
	}
	logger := ctxlog.Or(ctx, r.logger)
	logger.Debug("resolving dependency",
		"name", key, "entry", t.entry.String(), "async", async)
	// Waiters share the run, so cancelling ctx only abandons the
	// wait of this caller.
	runCtx := withFlight(context.WithoutCancel(ctx), t.own)
	value, err := r.run(runCtx, key, t.entry, async)
	if err != nil {
		logger.Warn("dependency resolution failed",
			"name", key, "error", err)
		r.registry.abort(key, t, parent, err)
		return nil, err
	}
	r.registry.commit(key, t, parent, value)
	logger.Debug("dependency resolved", "name", key)
	return value, nil
}

// aliasesSelf reports whether name is an alias chain ending at
// the self token. Such aliases are never cached.
func (r *Resolver) aliasesSelf(name string) bool {
	seen := make(map[string]bool)
	for !seen[name] {
		seen[name] = true
		entry, _, ok := r.registry.Lookup(name)
		if !ok || entry.Kind != KindAlias {
			return false
		}
		name = entry.Target
		if name == r.selfToken {
			return true
		}
	}
	return false
}

// run produces the value of the unresolved entry under key.
func (r *Resolver) run(
	ctx context.Context, key string, entry Entry, async bool,
) (interface{}, error) {
	switch entry.Kind {
	case KindValue:
		return entry.Value, nil
	case KindAlias:
		return r.resolve(ctx, entry.Target, async)
	case KindFactory:
		return r.inject(ctx, entry.Factory, async)
	case KindFile:
		// Every name of a file shares the slot of its path, so the
		// file is imported once.
		if filepath.IsAbs(entry.Path) {
			if path := filepath.Clean(entry.Path); path != key {
				return r.resolveKey(ctx, path, async, true)
			}
		}
		return r.load(ctx, entry.Path, async)
	default:
		return nil, errors.New("unknown entry kind")
	}
}

func (r *Resolver) load(
	ctx context.Context, id string, async bool,
) (interface{}, error) {
	if r.importer == nil {
		return nil, ErrDependencyNotFound
	}
	value, err := r.importer.Import(ctx, id)
	if err != nil {
		return nil, &ErrImport{ID: id, Err: err}
	}
	if inj, ok := value.(*Injectable); ok {
		return r.inject(ctx, inj, async)
	}
	return value, nil
}

// inject resolves the dependencies of inj and invokes it.
func (r *Resolver) inject(
	ctx context.Context, inj *Injectable, async bool,
) (interface{}, error) {
	if inj == nil {
		return nil, ErrInvalidFactory
	}
	deps, err := inj.Dependencies()
	if err != nil {
		return nil, err
	}
	if inj.Dir != "" {
		relocated := make([]string, len(deps))
		for i, dep := range deps {
			relocated[i] = dep
			if IsPath(dep) {
				relocated[i] = AbsPath(inj.Dir, dep)
			}
		}
		deps = relocated
	}
	args, err := r.resolveAll(ctx, deps, async)
	if err != nil {
		return nil, err
	}
	return Call(inj.Func, args)
}
