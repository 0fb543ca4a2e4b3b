package loader

import (
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/aegistudio/rely/core"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const (
	goExportsName = "Exports"
	goMarkerName  = "Rely"
)

// goExportsRegExp locates the declaration of Exports as a func.
var goExportsRegExp = regexp.MustCompile(
	`(?m)(^func\s+Exports\s*\(|\bExports\s*=\s*func\s*\()`)

func loadGoModule(filename string, code []byte) (interface{}, error) {
	src := string(code)
	if len(strings.TrimSpace(src)) == 0 {
		return nil, fmt.Errorf("%s is empty", filename)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", filename, err)
	}
	if _, err := i.EvalPath(filename); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", filename, err)
	}
	exports, err := i.Eval(goExportsName)
	if err != nil {
		return nil, fmt.Errorf("%s must define %s: %w", filename, goExportsName, err)
	}
	if !exports.IsValid() {
		return nil, fmt.Errorf("%s: %s has no value", filename, goExportsName)
	}
	if exports.Kind() != reflect.Func {
		return exports.Interface(), nil
	}
	// XXX: yaegi reports an undefined symbol as an error, which
	// is how a module without the marker looks like.
	marker, err := i.Eval(goMarkerName)
	if err != nil || !marker.IsValid() {
		return exports.Interface(), nil
	}
	inj := &core.Injectable{
		Func: exports.Interface(),
		Dir:  filepath.Dir(filename),
	}
	switch m := marker.Interface().(type) {
	case bool:
		inj.Derive = m
	case []string:
		inj.Deps = append([]string{}, m...)
	default:
		return nil, fmt.Errorf("%s: %s must be a bool or []string, got %T",
			filename, goMarkerName, m)
	}
	if !inj.Derive && inj.Deps == nil {
		return exports.Interface(), nil
	}
	if inj.Derive {
		loc := goExportsRegExp.FindStringIndex(src)
		if loc == nil {
			return nil, fmt.Errorf("%s: cannot locate the declaration of %s",
				filename, goExportsName)
		}
		inj.Source = src[loc[0]:]
	}
	return inj, nil
}
