package registry

import (
	"context"

	"github.com/cvereach/cvereach"
	"github.com/cvereach/cvereach/internal/cache"
)

// Caching wraps a Client and memoizes DependentsOf by package name: the BFS
// Orchestrator visits distinct versions of the same package as distinct
// nodes, and each one asks the same question ("who depends on this name"),
// so the underlying store only needs to answer it once per name for the
// lifetime of the entries the runtime keeps reachable.
type Caching struct {
	inner Client
	deps  cache.Live[string, []cvereach.ReverseDependencyRecord]
}

// NewCaching wraps inner with a DependentsOf memoization layer.
func NewCaching(inner Client) *Caching {
	return &Caching{inner: inner}
}

func (c *Caching) VersionsOf(ctx context.Context, name string) ([]string, error) {
	return c.inner.VersionsOf(ctx, name)
}

func (c *Caching) DependentsOf(ctx context.Context, name string) ([]cvereach.ReverseDependencyRecord, error) {
	v, err := c.deps.Get(ctx, name, func(ctx context.Context, name string) (*[]cvereach.ReverseDependencyRecord, error) {
		recs, err := c.inner.DependentsOf(ctx, name)
		if err != nil {
			return nil, err
		}
		return &recs, nil
	})
	if err != nil {
		return nil, err
	}
	return *v, nil
}

var _ Client = (*Caching)(nil)
