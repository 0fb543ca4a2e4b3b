package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/aegistudio/rely/core"
	"github.com/aegistudio/rely/paramnames"
	"go.starlark.net/starlark"
)

const (
	starlarkExportsName = "exports"
	starlarkMarkerName  = "rely"
)

func loadStarlarkModule(
	ctx context.Context, filename string, code []byte,
) (interface{}, error) {
	thread, stop := newThread(ctx, filename)
	globals, err := starlark.ExecFile(thread, filename, code, nil)
	stop()
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", filename, err)
	}
	exports, ok := globals[starlarkExportsName]
	if !ok {
		module := make(map[string]interface{}, len(globals))
		for name, value := range globals {
			module[name] = fromStarlark(filename, value)
		}
		return module, nil
	}
	fn, isCallable := exports.(starlark.Callable)
	marker, marked := globals[starlarkMarkerName]
	if !isCallable || !marked {
		return fromStarlark(filename, exports), nil
	}
	inj := &core.Injectable{
		Func: callStarlark(filename, fn),
		Dir:  filepath.Dir(filename),
	}
	switch m := marker.(type) {
	case starlark.Bool:
		if !m {
			return fromStarlark(filename, exports), nil
		}
		names, err := starlarkParams(fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		inj.Deps = names
	case *starlark.List:
		inj.Deps = []string{}
		for i := 0; i < m.Len(); i++ {
			name, ok := starlark.AsString(m.Index(i))
			if !ok {
				return nil, fmt.Errorf("%s: %s[%d] is not a string",
					filename, starlarkMarkerName, i)
			}
			inj.Deps = append(inj.Deps, name)
		}
	default:
		return nil, fmt.Errorf("%s: %s must be a bool or a list, got %s",
			filename, starlarkMarkerName, marker.Type())
	}
	return inj, nil
}

// newThread creates a thread cancelled along with ctx until stop
// is called.
func newThread(ctx context.Context, filename string) (*starlark.Thread, func()) {
	thread := &starlark.Thread{Name: filename}
	done := ctx.Done()
	if done == nil {
		return thread, func() {}
	}
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-done:
			thread.Cancel(ctx.Err().Error())
		case <-stopCh:
		}
	}()
	return thread, func() { close(stopCh) }
}

// starlarkParams returns the parameter names of a Starlark
// function, which the interpreter knows without parsing.
func starlarkParams(fn starlark.Callable) ([]string, error) {
	f, ok := fn.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("cannot derive parameters of %s", fn.Type())
	}
	names := make([]string, 0, f.NumParams())
	for i := 0; i < f.NumParams(); i++ {
		name, _ := f.Param(i)
		names = append(names, paramnames.Trim(name))
	}
	return names, nil
}

// callStarlark wraps fn as a variadic Go factory.
func callStarlark(
	filename string, fn starlark.Callable,
) func(args ...interface{}) (interface{}, error) {
	return func(args ...interface{}) (interface{}, error) {
		tuple := make(starlark.Tuple, 0, len(args))
		for _, arg := range args {
			tuple = append(tuple, toStarlark(arg))
		}
		thread := &starlark.Thread{Name: filename}
		result, err := starlark.Call(thread, fn, tuple, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: calling %s: %w", filename, fn.Name(), err)
		}
		return fromStarlark(filename, result), nil
	}
}

// hostValue carries a Go value through Starlark untouched.
type hostValue struct {
	value interface{}
}

var _ starlark.Value = hostValue{}

func (h hostValue) String() string        { return fmt.Sprintf("<%T>", h.value) }
func (h hostValue) Type() string          { return "host_value" }
func (h hostValue) Freeze()               {}
func (h hostValue) Truth() starlark.Bool  { return h.value != nil }
func (h hostValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", h.Type()) }

func toStarlark(v interface{}) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case []interface{}:
		elems := make([]starlark.Value, 0, len(v))
		for _, elem := range v {
			elems = append(elems, toStarlark(elem))
		}
		return starlark.NewList(elems)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(v))
		for _, key := range keys {
			_ = dict.SetKey(starlark.String(key), toStarlark(v[key]))
		}
		return dict
	default:
		return hostValue{value: v}
	}
}

func fromStarlark(filename string, v starlark.Value) interface{} {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.String:
		return string(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		return v.String()
	case starlark.Float:
		return float64(v)
	case *starlark.List:
		result := make([]interface{}, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			result = append(result, fromStarlark(filename, v.Index(i)))
		}
		return result
	case starlark.Tuple:
		result := make([]interface{}, 0, len(v))
		for _, elem := range v {
			result = append(result, fromStarlark(filename, elem))
		}
		return result
	case *starlark.Dict:
		result := make(map[string]interface{}, v.Len())
		for _, item := range v.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			result[key] = fromStarlark(filename, item[1])
		}
		return result
	case hostValue:
		return v.value
	case starlark.Callable:
		return callStarlark(filename, v)
	default:
		return v
	}
}
