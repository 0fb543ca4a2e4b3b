package core

import (
	"context"
)

// Future is the handle of an asynchronous resolution.
type Future struct {
	done  chan struct{}
	value interface{}
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// completed creates a future that has already settled.
func completed(value interface{}, err error) *Future {
	f := newFuture()
	f.complete(value, err)
	return f
}

func (f *Future) complete(value interface{}, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Done is closed once the resolution has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the resolution settles and returns its
// outcome. Cancelling ctx abandons the wait but never the
// resolution itself.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
