package rely

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"

	"github.com/aegistudio/rely/autoload"
	"github.com/aegistudio/rely/config"
	"github.com/aegistudio/rely/core"
	"github.com/aegistudio/rely/loader"
)

// Container is a dependency injection container. Containers are
// explicitly constructed and passed around, there is no default
// container shared by the process.
type Container struct {
	registry *core.Registry
	resolver *core.Resolver
	expander autoload.Expander
	baseDir  string
	logger   *slog.Logger
}

type containerOptions struct {
	options  config.Options
	importer core.Importer
	expander autoload.Expander
	logger   *slog.Logger
}

// Option is the option for creating a container.
type Option func(*containerOptions)

// Module aggregates a set of options as a single option.
func Module(opts ...Option) Option {
	return func(o *containerOptions) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

// WithOptions replaces the configurable options at once.
func WithOptions(options config.Options) Option {
	return func(o *containerOptions) {
		o.options = options
	}
}

// WithBaseDirectory sets the directory module files and path
// names resolve against.
func WithBaseDirectory(dir string) Option {
	return func(o *containerOptions) {
		o.options.BaseDirectory = dir
	}
}

// WithAutoRequire sets whether unknown names are imported.
func WithAutoRequire(autoRequire bool) Option {
	return func(o *containerOptions) {
		o.options.AutoRequire = autoRequire
	}
}

// WithImporter replaces the loader importing unknown names and
// module files.
func WithImporter(importer core.Importer) Option {
	return func(o *containerOptions) {
		o.importer = importer
	}
}

// WithExpander replaces the file glob used by AutoLoad.
func WithExpander(expander autoload.Expander) Option {
	return func(o *containerOptions) {
		o.expander = expander
	}
}

// WithLogger sets the logger of the container.
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// New creates a container.
func New(opts ...Option) *Container {
	o := &containerOptions{
		options: config.Default(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	Module(opts...)(o)
	baseDir := o.options.BaseDirectory
	if o.importer == nil {
		o.importer = loader.New(
			loader.WithBaseDirectory(baseDir),
			loader.WithLogger(o.logger))
	}
	if o.expander == nil {
		o.expander = autoload.FileGlob{Base: baseDir}
	}
	c := &Container{
		registry: core.NewRegistry(),
		expander: o.expander,
		baseDir:  baseDir,
		logger:   o.logger,
	}
	c.resolver = core.NewResolver(c.registry,
		core.WithImporter(o.importer),
		core.WithBaseDirectory(baseDir),
		core.WithAutoRequire(o.options.AutoRequire),
		core.WithSelf(SelfToken, c),
		core.WithLogger(o.logger))
	return c
}

// Load creates a container from the setup file at path. Options
// specified in the file override opts.
func Load(path string, opts ...Option) (*Container, error) {
	setup, err := config.LoadSetup(path)
	if err != nil {
		return nil, err
	}
	o := &containerOptions{options: config.Default()}
	Module(opts...)(o)
	c := New(Module(opts...), WithOptions(setup.Apply(o.options)))
	if err := c.SetupBulk(setup.Dependencies); err != nil {
		return nil, err
	}
	return c, nil
}

// BaseDirectory returns the directory names resolve against.
func (c *Container) BaseDirectory() string {
	return c.baseDir
}

// Set stores value under name, replacing any previous entry.
//
// A string is stored as an alias to the dependency it names, an
// *Injectable as a factory, and an Entry as is. Anything else is
// stored as a resolved value.
func (c *Container) Set(name string, value interface{}) error {
	var entry core.Entry
	switch v := value.(type) {
	case string:
		entry = core.AliasEntry(v)
	case *core.Injectable:
		if err := core.CheckFactory(v.Func); err != nil {
			return fmt.Errorf("factory %q: %w", name, err)
		}
		entry = core.FactoryEntry(v)
	case core.Entry:
		entry = v
		if entry.Kind == core.KindFile {
			entry.Path = core.AbsPath(c.baseDir, entry.Path)
		}
	default:
		entry = core.ValueEntry(value)
	}
	if err := c.registry.Set(name, entry); err != nil {
		return fmt.Errorf("set %q: %w", name, err)
	}
	c.logger.Debug("dependency registered", "name", name, "entry", entry.String())
	return nil
}

// DefineFactory stores fn under name as a factory requiring deps.
func (c *Container) DefineFactory(name string, deps Deps, fn interface{}) error {
	return c.Set(name, Factory(fn, deps))
}

// AutoLoad registers a file reference for every file matched by
// pattern, named after the file without its extension. Nothing
// is loaded until requested.
func (c *Container) AutoLoad(pattern string) ([]string, error) {
	names, err := autoload.Load(c.registry, c.expander, pattern)
	if err != nil {
		return nil, fmt.Errorf("autoload %q: %w", pattern, err)
	}
	c.logger.Debug("autoloaded modules", "pattern", pattern, "names", names)
	return names, nil
}

// WildcardKey is the key of SetupBulk forwarded to AutoLoad.
const WildcardKey = "*"

// SetupBulk sets every entry of setup, which must be a map keyed
// by strings. The key "*" is not set but its pattern is loaded
// by AutoLoad instead. Keys are applied in sorted order.
func (c *Container) SetupBulk(setup interface{}) error {
	val := reflect.ValueOf(setup)
	if !val.IsValid() || val.Kind() != reflect.Map ||
		val.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("%w: want a map keyed by strings, got %T",
			ErrInvalidConfiguration, setup)
	}
	keys := make([]string, 0, val.Len())
	values := make(map[string]interface{}, val.Len())
	for iter := val.MapRange(); iter.Next(); {
		key := iter.Key().String()
		keys = append(keys, key)
		values[key] = iter.Value().Interface()
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key != WildcardKey {
			if err := c.Set(key, values[key]); err != nil {
				return err
			}
			continue
		}
		pattern, ok := values[key].(string)
		if !ok {
			return fmt.Errorf("%w: pattern of %q must be a string, got %T",
				ErrInvalidConfiguration, WildcardKey, values[key])
		}
		if _, err := c.AutoLoad(pattern); err != nil {
			return err
		}
	}
	return nil
}

// Watch registers the files created later that match pattern,
// until ctx is done or the watcher is closed.
func (c *Container) Watch(ctx context.Context, pattern string) (*autoload.Watcher, error) {
	w, err := autoload.NewWatcher(c.registry, c.baseDir, pattern,
		autoload.WithWatcherLogger(c.logger))
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-w.Done():
		}
	}()
	return w, nil
}

// Entries returns the registered entries sorted by name.
func (c *Container) Entries() []core.EntryInfo {
	return c.registry.Entries()
}
