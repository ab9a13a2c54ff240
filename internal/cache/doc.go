// Package cache provides a liveness-scoped cache for arbitrary Go values,
// used by [registry.Caching] to memoize "who depends on X" lookups across
// the many BFS nodes that end up asking the same question about the same
// package name.
package cache

import "context"

// CreateFunc produces the value to cache for a given key, invoked at most
// once per key while a live entry exists (concurrent callers for the same
// absent key share one CreateFunc call via an internal singleflight group).
type CreateFunc[K comparable, V any] func(context.Context, K) (*V, error)
