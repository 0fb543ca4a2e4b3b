// Package paramnames derives the ordered parameter names of a
// function from its source text.
//
// It is a compatibility shim for factories that opt into having
// their dependencies named after their parameters. Declaring the
// dependency list explicitly is always preferable: the parser is
// best effort and only understands the parameter list, so Go
// parameters declared by type only are reported by type name.
package paramnames

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

// ErrNoParameterList is returned when no parenthesized parameter
// list can be found in the source.
var ErrNoParameterList = errors.New("no parameter list found")

// commentRegExp matches block comments and line comments, but
// not the "//" following a scheme like "http:".
var commentRegExp = regexp.MustCompile(`(?m)/\*[\s\S]*?\*/|([^:]|^)//.*$`)

// keywordRegExp matches the keyword introducing a function.
var keywordRegExp = regexp.MustCompile(`\b(func|function|def)\b`)

// StripComments removes block and line comments from src.
func StripComments(src string) string {
	return commentRegExp.ReplaceAllStringFunc(src, func(match string) string {
		if strings.HasPrefix(match, "/*") {
			return " "
		}
		// Keep the character preceding a line comment.
		if idx := strings.Index(match, "//"); idx > 0 {
			return match[:idx]
		}
		return ""
	})
}

// Extract returns the parameter names of the first function in
// src, in declaration order.
//
// The src may start with the func keyword, a name and a Go method
// receiver, which are skipped. One leading and one trailing "_"
// are trimmed from every name, so that a parameter can avoid
// colliding with a reserved identifier.
func Extract(src string) ([]string, error) {
	text := StripComments(src)
	list, ok := parameterList(text)
	if !ok {
		return nil, ErrNoParameterList
	}
	var names []string
	for _, param := range splitTopLevel(list) {
		name := leadingIdent(param)
		if name == "" {
			continue
		}
		names = append(names, Trim(name))
	}
	return names, nil
}

// Trim removes one leading and one trailing "_" from name. A
// name made only of underscores is returned unchanged.
func Trim(name string) string {
	trimmed := strings.TrimPrefix(name, "_")
	trimmed = strings.TrimSuffix(trimmed, "_")
	if trimmed == "" {
		return name
	}
	return trimmed
}

// FromFunc extracts the parameter names of fn by reading the
// source file it was compiled from.
func FromFunc(fn interface{}) ([]string, error) {
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("non-func %T", fn)
	}
	f := runtime.FuncForPC(val.Pointer())
	if f == nil {
		return nil, fmt.Errorf("no runtime information for %T", fn)
	}
	file, line := f.FileLine(f.Entry())
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read source of %s: %w", f.Name(), err)
	}
	lines := strings.SplitAfter(string(data), "\n")
	if line < 1 || line > len(lines) {
		return nil, fmt.Errorf(
			"source of %s: line %d out of range", f.Name(), line)
	}
	return Extract(strings.Join(lines[line-1:], ""))
}

// parameterList returns the content of the parameter list.
func parameterList(text string) (string, bool) {
	rest, isFunc := text, false
	if loc := keywordRegExp.FindStringIndex(text); loc != nil {
		rest, isFunc = text[loc[1]:], true
	}
	start := strings.IndexByte(rest, '(')
	if start < 0 {
		return "", false
	}
	list, after, ok := balanced(rest[start:])
	if !ok {
		return "", false
	}
	// XXX: a Go method is declared as "func (r *T) Name(...)",
	// where the first list is the receiver, so look for the name
	// followed by a second list.
	if isFunc && strings.TrimSpace(rest[:start]) == "" {
		after = strings.TrimSpace(after)
		if name := leadingIdent(after); name != "" {
			next := strings.TrimSpace(after[len(name):])
			if strings.HasPrefix(next, "(") {
				if method, _, ok := balanced(next); ok {
					return method, true
				}
			}
		}
	}
	return list, true
}

// balanced returns the content of the parenthesized group at the
// start of s and the text after it.
func balanced(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// splitTopLevel splits list on commas outside of brackets.
func splitTopLevel(list string) []string {
	var result []string
	depth, start := 0, 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				result = append(result, list[start:i])
				start = i + 1
			}
		}
	}
	return append(result, list[start:])
}

// leadingIdent returns the identifier at the start of param,
// skipping spread and star markers.
func leadingIdent(param string) string {
	param = strings.TrimSpace(param)
	param = strings.TrimLeft(param, ".*")
	end := 0
	for end < len(param) && isIdentByte(param[end]) {
		end++
	}
	return param[:end]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9') ||
		c >= 0x80
}
