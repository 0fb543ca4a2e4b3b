package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aegistudio/rely/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// importer is a fake import collaborator over a map.
type importer struct {
	mu      sync.Mutex
	modules map[string]interface{}
	calls   map[string]int
	gate    chan struct{}
}

func newImporter(modules map[string]interface{}) *importer {
	return &importer{
		modules: modules,
		calls:   make(map[string]int),
	}
}

func (i *importer) Import(ctx context.Context, id string) (interface{}, error) {
	i.mu.Lock()
	i.calls[id]++
	gate := i.gate
	i.mu.Unlock()
	if gate != nil {
		<-gate
	}
	value, ok := i.modules[id]
	if !ok {
		return nil, fmt.Errorf("cannot find module %q: %w",
			id, core.ErrDependencyNotFound)
	}
	if err, ok := value.(error); ok {
		return nil, err
	}
	return value, nil
}

func (i *importer) count(id string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[id]
}

func newResolver(t *testing.T, opts ...core.Option) *core.Resolver {
	t.Helper()
	return core.NewResolver(core.NewRegistry(), opts...)
}

func TestValueIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	value := &struct{ n int }{n: 1}
	assert.NoError(r.Registry().Set("value", core.ValueEntry(value)))
	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), "value")
		assert.NoError(err)
		assert.Same(value, got)
	}
}

func TestFactoryInvokedOnce(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	calls := 0
	assert.NoError(r.Registry().Set("one", core.ValueEntry(1)))
	assert.NoError(r.Registry().Set("two", core.ValueEntry(2)))
	assert.NoError(r.Registry().Set("sum", core.FactoryEntry(&core.Injectable{
		Func: func(a, b int) int {
			calls++
			return a + b
		},
		Deps: []string{"one", "two"},
	})))
	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "sum")
		assert.NoError(err)
		assert.Equal(3, got)
	}
	assert.Equal(1, calls)
	entry, state, ok := r.Registry().Lookup("sum")
	assert.True(ok)
	assert.Equal(core.Resolved, state)
	assert.Equal(core.KindValue, entry.Kind)
}

func TestFactoryArgumentOrder(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("a", core.ValueEntry("a")))
	assert.NoError(r.Registry().Set("b", core.ValueEntry("b")))
	assert.NoError(r.Registry().Set("c", core.ValueEntry("c")))
	join := func(parts ...string) string {
		result := ""
		for _, part := range parts {
			result += part
		}
		return result
	}
	assert.NoError(r.Registry().Set("sync", core.FactoryEntry(
		&core.Injectable{Func: join, Deps: []string{"c", "a", "b"}})))
	assert.NoError(r.Registry().Set("async", core.FactoryEntry(
		&core.Injectable{Func: join, Deps: []string{"b", "c", "a"}})))

	got, err := r.Resolve(context.Background(), "sync")
	assert.NoError(err)
	assert.Equal("cab", got)
	got, err = r.ResolveAsync(context.Background(), "async").Wait(context.Background())
	assert.NoError(err)
	assert.Equal("bca", got)
}

func TestFactoryWithoutDeps(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("plain", core.FactoryEntry(&core.Injectable{
		Func: func() (string, error) { return "plain", nil },
	})))
	got, err := r.Resolve(context.Background(), "plain")
	assert.NoError(err)
	assert.Equal("plain", got)
}

func TestExplicitDepsWinOverDerive(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("x", core.ValueEntry("x")))
	assert.NoError(r.Registry().Set("y", core.ValueEntry("y")))
	assert.NoError(r.Registry().Set("f", core.FactoryEntry(&core.Injectable{
		Func:   func(first, second string) string { return first + second },
		Deps:   []string{"y", "x"},
		Derive: true,
		Source: "func(x, y string)",
	})))
	got, err := r.Resolve(context.Background(), "f")
	assert.NoError(err)
	assert.Equal("yx", got)
}

func TestDeriveFromSource(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("host", core.ValueEntry("localhost")))
	assert.NoError(r.Registry().Set("port", core.ValueEntry(8080)))
	assert.NoError(r.Registry().Set("addr", core.FactoryEntry(&core.Injectable{
		Func: func(host string, port int) string {
			return fmt.Sprintf("%s:%d", host, port)
		},
		Derive: true,
		Source: "func(/* where */ host string, _port_ int) string {",
	})))
	got, err := r.Resolve(context.Background(), "addr")
	assert.NoError(err)
	assert.Equal("localhost:8080", got)
}

func TestAliasCollapses(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	calls := 0
	assert.NoError(r.Registry().Set("target", core.FactoryEntry(&core.Injectable{
		Func: func() int { calls++; return 42 },
	})))
	assert.NoError(r.Registry().Set("alias", core.AliasEntry("target")))
	assert.Equal(core.ClassAlias, r.Classify("alias"))

	got, err := r.Resolve(context.Background(), "alias")
	assert.NoError(err)
	assert.Equal(42, got)
	entry, state, _ := r.Registry().Lookup("alias")
	assert.Equal(core.KindValue, entry.Kind)
	assert.Equal(core.Resolved, state)
	assert.Equal(core.ClassRegistered, r.Classify("alias"))

	got, err = r.Resolve(context.Background(), "target")
	assert.NoError(err)
	assert.Equal(42, got)
	assert.Equal(1, calls)
}

func TestSelfReference(t *testing.T) {
	assert := assert.New(t)
	self := &struct{ name string }{name: "container"}
	r := newResolver(t, core.WithSelf("rely", self))
	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "rely")
		assert.NoError(err)
		assert.Same(self, got)
	}
	got, err := r.ResolveAsync(context.Background(), "rely").Wait(context.Background())
	assert.NoError(err)
	assert.Same(self, got)
	_, _, ok := r.Registry().Lookup("rely")
	assert.False(ok)
}

func TestNotFoundWithoutAutoRequire(t *testing.T) {
	assert := assert.New(t)
	imp := newImporter(map[string]interface{}{"fs": "fs module"})
	r := newResolver(t, core.WithImporter(imp), core.WithAutoRequire(false))
	_, err := r.Resolve(context.Background(), "fs")
	assert.ErrorIs(err, core.ErrDependencyNotFound)
	assert.Equal(0, imp.count("fs"))
	assert.Equal(0, r.Registry().Len())
}

func TestAutoRequireImportsAndCaches(t *testing.T) {
	assert := assert.New(t)
	imp := newImporter(map[string]interface{}{"fs": "fs module"})
	r := newResolver(t, core.WithImporter(imp))
	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "fs")
		assert.NoError(err)
		assert.Equal("fs module", got)
	}
	assert.Equal(1, imp.count("fs"))

	_, err := r.Resolve(context.Background(), "some-unknown-module")
	assert.ErrorIs(err, core.ErrDependencyNotFound)
	var importErr *core.ErrImport
	assert.ErrorAs(err, &importErr)
	_, _, ok := r.Registry().Lookup("some-unknown-module")
	assert.False(ok)
}

func TestPathIsResolvedAgainstBase(t *testing.T) {
	assert := assert.New(t)
	imp := newImporter(map[string]interface{}{
		"/srv/app/lib/testlib.yaml": map[string]interface{}{"name": "testlib"},
	})
	r := newResolver(t,
		core.WithImporter(imp),
		core.WithBaseDirectory("/srv/app"),
		core.WithAutoRequire(false))
	got, err := r.Resolve(context.Background(), "./lib/testlib.yaml")
	assert.NoError(err)
	assert.Equal(map[string]interface{}{"name": "testlib"}, got)
	_, state, ok := r.Registry().Lookup("/srv/app/lib/testlib.yaml")
	assert.True(ok)
	assert.Equal(core.Resolved, state)

	_, err = r.Resolve(context.Background(), "../app/lib/testlib.yaml")
	assert.NoError(err)
	assert.Equal(1, imp.count("/srv/app/lib/testlib.yaml"))
}

func TestFileReferenceInjectable(t *testing.T) {
	assert := assert.New(t)
	imp := newImporter(map[string]interface{}{
		"/path/to/dep": &core.Injectable{
			Func: func(greeting string) string { return greeting + ", world" },
			Deps: []string{"greeting"},
		},
	})
	r := newResolver(t, core.WithImporter(imp))
	assert.NoError(r.Registry().Set("greeting", core.ValueEntry("hello")))
	assert.NoError(r.Registry().Set("dep", core.FileEntry("/path/to/dep")))
	_, state, _ := r.Registry().Lookup("dep")
	assert.Equal(core.Unresolved, state)

	got, err := r.Resolve(context.Background(), "dep")
	assert.NoError(err)
	assert.Equal("hello, world", got)
	entry, _, _ := r.Registry().Lookup("dep")
	assert.Equal(core.ValueEntry("hello, world"), entry)
}

func TestFileSharedAcrossNames(t *testing.T) {
	assert := assert.New(t)
	module := &struct{ n int }{n: 1}
	imp := newImporter(map[string]interface{}{"/srv/app/one.star": module})
	r := newResolver(t,
		core.WithImporter(imp),
		core.WithBaseDirectory("/srv/app"),
		core.WithAutoRequire(false))
	assert.NoError(r.Registry().Set("one", core.FileEntry("/srv/app/one.star")))
	assert.NoError(r.Registry().Set("first", core.FileEntry("/srv/app/./one.star")))

	for _, name := range []string{"one", "./one.star", "first", "/srv/app/one.star"} {
		got, err := r.Resolve(context.Background(), name)
		assert.NoError(err, name)
		assert.Same(module, got, name)
	}
	assert.Equal(1, imp.count("/srv/app/one.star"))

	r = newResolver(t, core.WithImporter(imp), core.WithBaseDirectory("/srv/app"))
	assert.NoError(r.Registry().Set("one", core.FileEntry("/srv/app/one.star")))
	got, err := r.Resolve(context.Background(), "./one.star")
	assert.NoError(err)
	assert.Same(module, got)
	got, err = r.ResolveAsync(context.Background(), "one").Wait(context.Background())
	assert.NoError(err)
	assert.Same(module, got)
	assert.Equal(2, imp.count("/srv/app/one.star"))
}

func TestInjectableDirectory(t *testing.T) {
	assert := assert.New(t)
	imp := newImporter(map[string]interface{}{
		"/srv/app/lib/mod.star": &core.Injectable{
			Func: func(sib map[string]interface{}, top string) string {
				return sib["x"].(string) + top
			},
			Deps: []string{"./sib.yaml", "../top.json"},
			Dir:  "/srv/app/lib",
		},
		"/srv/app/lib/sib.yaml": map[string]interface{}{"x": "sibling"},
		"/srv/top.json":         "+top",
	})
	r := newResolver(t,
		core.WithImporter(imp),
		core.WithBaseDirectory("/srv/app"),
		core.WithAutoRequire(false))
	got, err := r.Resolve(context.Background(), "./lib/mod.star")
	assert.NoError(err)
	assert.Equal("sibling+top", got)
	assert.Equal(0, imp.count("/srv/app/sib.yaml"))
	_, state, ok := r.Registry().Lookup("/srv/app/lib/sib.yaml")
	assert.True(ok)
	assert.Equal(core.Resolved, state)

	// Registered factories keep resolving against the base.
	assert.NoError(r.Registry().Set("factory", core.FactoryEntry(&core.Injectable{
		Func: func(sib map[string]interface{}) interface{} { return sib["x"] },
		Deps: []string{"./lib/sib.yaml"},
	})))
	got, err = r.Resolve(context.Background(), "factory")
	assert.NoError(err)
	assert.Equal("sibling", got)
}

func TestAliasOfSelfIsNotCached(t *testing.T) {
	assert := assert.New(t)
	self := &struct{ name string }{name: "container"}
	r := newResolver(t, core.WithSelf("rely", self))
	assert.NoError(r.Registry().Set("c", core.AliasEntry("rely")))
	assert.NoError(r.Registry().Set("d", core.AliasEntry("c")))
	for _, name := range []string{"c", "d", "c"} {
		got, err := r.Resolve(context.Background(), name)
		assert.NoError(err)
		assert.Same(self, got)
	}
	got, err := r.ResolveAsync(context.Background(), "d").Wait(context.Background())
	assert.NoError(err)
	assert.Same(self, got)
	for name, target := range map[string]string{"c": "rely", "d": "c"} {
		entry, state, ok := r.Registry().Lookup(name)
		assert.True(ok)
		assert.Equal(core.AliasEntry(target), entry)
		assert.Equal(core.Unresolved, state)
	}
}

type importFunc func(ctx context.Context, id string) (interface{}, error)

func (f importFunc) Import(ctx context.Context, id string) (interface{}, error) {
	return f(ctx, id)
}

func TestCancelledCallerDoesNotAbortLoad(t *testing.T) {
	assert := assert.New(t)
	imp := importFunc(func(ctx context.Context, id string) (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return "loaded " + id, nil
	})
	r := newResolver(t, core.WithImporter(imp))
	assert.NoError(r.Registry().Set("dep", core.FileEntry("/path/to/dep")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.Resolve(ctx, "dep")
	assert.NoError(err)
	assert.Equal("loaded /path/to/dep", got)
	got, err = r.Resolve(ctx, "fs")
	assert.NoError(err)
	assert.Equal("loaded fs", got)
	_, state, _ := r.Registry().Lookup("dep")
	assert.Equal(core.Resolved, state)
}

func TestFailureIsNotCached(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	calls := 0
	assert.NoError(r.Registry().Set("flaky", core.FactoryEntry(&core.Injectable{
		Func: func() (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("transient")
			}
			return calls, nil
		},
	})))
	_, err := r.Resolve(context.Background(), "flaky")
	assert.EqualError(err, `dependency "flaky": transient`)
	entry, state, _ := r.Registry().Lookup("flaky")
	assert.Equal(core.KindFactory, entry.Kind)
	assert.Equal(core.Unresolved, state)

	got, err := r.Resolve(context.Background(), "flaky")
	assert.NoError(err)
	assert.Equal(2, got)
}

func TestFactoryPanicIsRecovered(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("boom", core.FactoryEntry(&core.Injectable{
		Func: func() int { panic("boom") },
	})))
	_, err := r.Resolve(context.Background(), "boom")
	assert.ErrorContains(err, "factory panicked: boom")
	_, state, _ := r.Registry().Lookup("boom")
	assert.Equal(core.Unresolved, state)
}

func TestMissingDependencyPropagates(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t, core.WithAutoRequire(false))
	assert.NoError(r.Registry().Set("app", core.FactoryEntry(&core.Injectable{
		Func: func(db interface{}) interface{} { return db },
		Deps: []string{"db"},
	})))
	_, err := r.Resolve(context.Background(), "app")
	assert.ErrorIs(err, core.ErrDependencyNotFound)
	assert.EqualError(err, `dependency "app": dependency "db": dependency not found`)
}

func TestCyclicResolutionSync(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("a", core.FactoryEntry(&core.Injectable{
		Func: func(b interface{}) interface{} { return b },
		Deps: []string{"b"},
	})))
	assert.NoError(r.Registry().Set("b", core.FactoryEntry(&core.Injectable{
		Func: func(a interface{}) interface{} { return a },
		Deps: []string{"a"},
	})))
	_, err := r.Resolve(context.Background(), "a")
	assert.ErrorIs(err, core.ErrCyclicResolution)
	_, stateA, _ := r.Registry().Lookup("a")
	_, stateB, _ := r.Registry().Lookup("b")
	assert.Equal(core.Unresolved, stateA)
	assert.Equal(core.Unresolved, stateB)
}

func TestCyclicResolutionAsync(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.NoError(r.Registry().Set("self", core.FactoryEntry(&core.Injectable{
		Func: func(self interface{}) interface{} { return self },
		Deps: []string{"self"},
	})))
	assert.NoError(r.Registry().Set("x", core.FactoryEntry(&core.Injectable{
		Func: func(y, z interface{}) interface{} { return y },
		Deps: []string{"y", "z"},
	})))
	assert.NoError(r.Registry().Set("y", core.FactoryEntry(&core.Injectable{
		Func: func(x interface{}) interface{} { return x },
		Deps: []string{"x"},
	})))
	assert.NoError(r.Registry().Set("z", core.ValueEntry("z")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.ResolveAsync(ctx, "self").Wait(ctx)
	assert.ErrorIs(err, core.ErrCyclicResolution)
	_, err = r.ResolveAsync(ctx, "x").Wait(ctx)
	assert.ErrorIs(err, core.ErrCyclicResolution)
}

func TestAsyncSingleFlight(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	release := make(chan struct{})
	var calls int32
	assert.NoError(r.Registry().Set("slow", core.FactoryEntry(&core.Injectable{
		Func: func() *struct{ n int32 } {
			n := atomic.AddInt32(&calls, 1)
			<-release
			return &struct{ n int32 }{n: n}
		},
	})))

	ctx := context.Background()
	var futures []*core.Future
	for i := 0; i < 8; i++ {
		futures = append(futures, r.ResolveAsync(ctx, "slow"))
	}
	require.Eventually(t, func() bool {
		_, state, _ := r.Registry().Lookup("slow")
		return state == core.Resolving
	}, 5*time.Second, time.Millisecond)

	// Synchronous callers refuse to wait for the flight.
	_, err := r.Resolve(ctx, "slow")
	assert.ErrorIs(err, core.ErrSyncResolutionBlocked)

	close(release)
	first, err := futures[0].Wait(ctx)
	assert.NoError(err)
	for _, future := range futures[1:] {
		got, err := future.Wait(ctx)
		assert.NoError(err)
		assert.Same(first, got)
	}
	assert.Equal(int32(1), atomic.LoadInt32(&calls))
}

func TestAsyncSingleFlightImport(t *testing.T) {
	assert := assert.New(t)
	imp := newImporter(map[string]interface{}{"/lib/module": "module"})
	imp.gate = make(chan struct{})
	r := newResolver(t, core.WithImporter(imp))
	assert.NoError(r.Registry().Set("one", core.FileEntry("/lib/module")))

	ctx := context.Background()
	f1 := r.ResolveAsync(ctx, "one")
	f2 := r.ResolveAsync(ctx, "one")
	require.Eventually(t, func() bool {
		return imp.count("/lib/module") == 1
	}, 5*time.Second, time.Millisecond)
	close(imp.gate)
	for _, f := range []*core.Future{f1, f2} {
		got, err := f.Wait(ctx)
		assert.NoError(err)
		assert.Equal("module", got)
	}
	assert.Equal(1, imp.count("/lib/module"))
}

func TestResolveManyAsyncFirstFailure(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t, core.WithAutoRequire(false))
	assert.NoError(r.Registry().Set("ok", core.ValueEntry("ok")))
	values, err := r.ResolveMany(context.Background(), []string{"ok", "ok"}, core.Async)
	assert.NoError(err)
	assert.Equal([]interface{}{"ok", "ok"}, values)

	_, err = r.ResolveMany(context.Background(), []string{"ok", "missing"}, core.Async)
	assert.ErrorIs(err, core.ErrDependencyNotFound)
	_, err = r.ResolveMany(context.Background(), []string{"missing", "ok"}, core.Sync)
	assert.ErrorIs(err, core.ErrDependencyNotFound)
}

func TestOverwriteWhileResolving(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	release := make(chan struct{})
	assert.NoError(r.Registry().Set("name", core.FactoryEntry(&core.Injectable{
		Func: func() string { <-release; return "old" },
	})))
	future := r.ResolveAsync(context.Background(), "name")
	require.Eventually(t, func() bool {
		_, state, _ := r.Registry().Lookup("name")
		return state == core.Resolving
	}, 5*time.Second, time.Millisecond)
	assert.NoError(r.Registry().Set("name", core.ValueEntry("new")))
	close(release)

	got, err := future.Wait(context.Background())
	assert.NoError(err)
	assert.Equal("old", got)
	got, err = r.Resolve(context.Background(), "name")
	assert.NoError(err)
	assert.Equal("new", got)
}

func TestInvalidName(t *testing.T) {
	assert := assert.New(t)
	r := newResolver(t)
	assert.ErrorIs(r.Registry().Set("", core.ValueEntry(1)), core.ErrInvalidName)
	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(err, core.ErrInvalidName)
}
