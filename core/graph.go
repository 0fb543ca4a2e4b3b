package core

import (
	"context"
)

// flight is an in-flight resolution of a name.
//
// The flights form a wait graph: a flight waits on the flights
// it spawned to resolve its dependencies, and on the flights it
// joined because another caller was already resolving the name.
// The graph is only mutated while holding the registry lock.
type flight struct {
	name   string
	future *Future

	// waits counts the edges to each flight this one is
	// waiting on. A joined flight may be waited on by several
	// concurrent dependencies of the same factory.
	waits map[*flight]int
}

func newFlight(name string) *flight {
	return &flight{
		name:   name,
		future: newFuture(),
		waits:  make(map[*flight]int),
	}
}

// reaches reports whether f is or transitively waits on target.
func (f *flight) reaches(target *flight) bool {
	visited := make(map[*flight]struct{})
	var visit func(node *flight) bool
	visit = func(node *flight) bool {
		if node == target {
			return true
		}
		if _, ok := visited[node]; ok {
			return false
		}
		visited[node] = struct{}{}
		for next := range node.waits {
			if visit(next) {
				return true
			}
		}
		return false
	}
	return visit(f)
}

func (f *flight) wait(target *flight) {
	if f != nil {
		f.waits[target]++
	}
}

func (f *flight) unwait(target *flight) {
	if f == nil {
		return
	}
	if f.waits[target] <= 1 {
		delete(f.waits, target)
	} else {
		f.waits[target]--
	}
}

type flightKey struct{}

// withFlight marks the context as resolving on behalf of f.
func withFlight(ctx context.Context, f *flight) context.Context {
	return context.WithValue(ctx, flightKey{}, f)
}

// currentFlight returns the innermost flight of the context,
// or nil when called from outside any resolution.
func currentFlight(ctx context.Context) *flight {
	f, _ := ctx.Value(flightKey{}).(*flight)
	return f
}
