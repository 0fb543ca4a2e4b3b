package rely

import (
	"context"
	"fmt"
)

// Get resolves name synchronously, resolving and caching it on
// the first request.
//
// Get never waits for a resolution in flight elsewhere, it fails
// with ErrSyncResolutionBlocked instead. Use GetAsync when the
// container is shared by goroutines.
func (c *Container) Get(ctx context.Context, name string) (interface{}, error) {
	return c.resolver.Resolve(ctx, name)
}

// GetAsync resolves name on another goroutine. Concurrent
// requests of the same name share a single resolution.
func (c *Container) GetAsync(ctx context.Context, name string) *Future {
	return c.resolver.ResolveAsync(ctx, name)
}

// MustGet is like Get but panics on error.
func (c *Container) MustGet(ctx context.Context, name string) interface{} {
	value, err := c.Get(ctx, name)
	if err != nil {
		panic(err)
	}
	return value
}

// ResolveMany resolves names in the specified mode, returning
// the values in the order of names.
func (c *Container) ResolveMany(
	ctx context.Context, names []string, mode Mode,
) ([]interface{}, error) {
	return c.resolver.ResolveMany(ctx, names, mode)
}

// Resolve resolves name asynchronously and asserts the value is
// of type T.
func Resolve[T any](ctx context.Context, c *Container, name string) (T, error) {
	var result T
	value, err := c.GetAsync(ctx, name).Wait(ctx)
	if err != nil {
		return result, err
	}
	result, ok := value.(T)
	if !ok {
		return result, fmt.Errorf("dependency %q is %T, not %T", name, value, result)
	}
	return result, nil
}
