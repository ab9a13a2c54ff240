// Package registry declares the read-only interface the BFS orchestrator
// uses to query a package registry's metadata store: the versions a package
// has published, and the packages that declare a direct dependency on it.
package registry

import (
	"context"

	"github.com/cvereach/cvereach"
)

// Client is the registry metadata surface the orchestrator depends on. Both
// methods are read-only, idempotent, and safe for concurrent use.
type Client interface {
	// VersionsOf returns every published version string of name, in
	// unspecified order.
	VersionsOf(ctx context.Context, name string) ([]string, error)

	// DependentsOf returns every record declaring a direct dependency on
	// name.
	DependentsOf(ctx context.Context, name string) ([]cvereach.ReverseDependencyRecord, error)
}
