// Package bfs implements the BFS Orchestrator: a level-synchronous traversal
// of a registry's reverse-dependency graph, rooted at a known-vulnerable
// package, that materializes, patches, and analyzes each visited node and
// expands reached nodes to their own reverse dependents.
package bfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/Masterminds/semver"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cvereach/cvereach"
	"github.com/cvereach/cvereach/artifact"
	"github.com/cvereach/cvereach/internal/rlog"
	"github.com/cvereach/cvereach/internal/tracing"
	"github.com/cvereach/cvereach/manifest"
	"github.com/cvereach/cvereach/registry"
	"github.com/cvereach/cvereach/runner"
	"github.com/cvereach/cvereach/selector"
	"github.com/cvereach/cvereach/workspace"
)

// DefaultMaxConcurrentBFSNodes is the default bound on nodes in flight per
// level, overridable via Options.
const DefaultMaxConcurrentBFSNodes = 32

// DefaultMaxConcurrentDepDownload is the default bound on concurrent
// materializations, overridable via Options.
const DefaultMaxConcurrentDepDownload = 32

// Materializer is the subset of materialize.Materializer the orchestrator
// depends on, so tests can substitute a fake.
type Materializer interface {
	Materialize(ctx context.Context, name, version, scratchDir string) (string, error)
}

// Analyzer is the subset of runner.Runner the orchestrator depends on.
type Analyzer interface {
	Analyze(ctx context.Context, cveID, name, version, workingTree string, symbols []string) (runner.Result, error)
}

// Options configures an Orchestrator. All fields except the concurrency
// bounds are required.
type Options struct {
	CVEID         string
	RootName      string
	RootRange     string
	TargetSymbols []string

	Registry     registry.Client
	Workspace    *workspace.Manager
	Materializer Materializer
	Analyzer     Analyzer
	Artifacts    *artifact.Writer

	MaxConcurrentBFSNodes    int
	MaxConcurrentDepDownload int
}

func (o *Options) setDefaults() {
	if o.MaxConcurrentBFSNodes <= 0 {
		o.MaxConcurrentBFSNodes = DefaultMaxConcurrentBFSNodes
	}
	if o.MaxConcurrentDepDownload <= 0 {
		o.MaxConcurrentDepDownload = DefaultMaxConcurrentDepDownload
	}
}

func (o *Options) validate() error {
	switch {
	case o.CVEID == "":
		return fmt.Errorf("bfs: CVEID is required")
	case o.RootName == "":
		return fmt.Errorf("bfs: RootName is required")
	case o.RootRange == "":
		return fmt.Errorf("bfs: RootRange is required")
	case len(o.TargetSymbols) == 0:
		return fmt.Errorf("bfs: TargetSymbols is required")
	case o.Registry == nil:
		return fmt.Errorf("bfs: Registry is required")
	case o.Workspace == nil:
		return fmt.Errorf("bfs: Workspace is required")
	case o.Materializer == nil:
		return fmt.Errorf("bfs: Materializer is required")
	case o.Analyzer == nil:
		return fmt.Errorf("bfs: Analyzer is required")
	case o.Artifacts == nil:
		return fmt.Errorf("bfs: Artifacts is required")
	}
	return nil
}

// node is one arena-indexed TraversalNode. parent is an index into
// Orchestrator.nodes, or -1 for a root node. wsIndex is the corresponding
// workspace.Manager index.
type node struct {
	pkg     cvereach.PackageId
	parent  int
	wsIndex int
}

// Orchestrator runs a single BFS traversal to completion.
type Orchestrator struct {
	opts Options

	mu      sync.Mutex
	nodes   []node
	visited map[string]bool
}

// New validates opts, applies defaults to the concurrency bounds, and
// returns a ready Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()
	return &Orchestrator{opts: opts, visited: make(map[string]bool)}, nil
}

// Run drives the traversal to completion. It returns a non-nil error only
// for the fatal classes: registry failure on the seed query, a RootRange that
// does not parse as a SemVer range, or failure to allocate the root
// workspace. All per-node failures are logged and turn
// the offending node barren without aborting the run.
func (o *Orchestrator) Run(ctx context.Context) error {
	seedIdxs, err := o.seed(ctx)
	if err != nil {
		return err
	}
	if len(seedIdxs) == 0 {
		rlog.Logger(ctx).Info("bfs: no seed versions matched range; traversal complete with no artifacts")
		return nil
	}

	level := seedIdxs
	downloadSem := semaphore.NewWeighted(int64(o.opts.MaxConcurrentDepDownload))

	for len(level) > 0 {
		children, err := o.processLevel(ctx, level, downloadSem)
		if err != nil {
			return err
		}
		level = o.admitChildren(children)
	}
	return nil
}

// seed queries the root package's versions, applies the two-endpoint
// heuristic against RootRange, and allocates a root-level node per selected
// version.
func (o *Orchestrator) seed(ctx context.Context) ([]int, error) {
	versions, err := o.opts.Registry.VersionsOf(ctx, o.opts.RootName)
	if err != nil {
		return nil, &cvereach.Error{Op: "bfs: seed query", Kind: cvereach.ErrRegistryUnavailable, Inner: err}
	}

	oldest, newest, err := selector.Endpoints(versions, o.opts.RootRange)
	if err != nil {
		return nil, &cvereach.Error{Op: "bfs: seed range", Kind: cvereach.ErrRegistryUnavailable, Inner: err}
	}
	if oldest == nil {
		return nil, nil
	}

	var idxs []int
	for _, sel := range uniqueSelected(oldest, newest) {
		idx, err := o.addNode(-1, o.opts.RootName, sel.Raw, sel.Version)
		if err != nil {
			return nil, &cvereach.Error{Op: "bfs: allocate root workspace", Kind: cvereach.ErrRegistryUnavailable, Inner: err}
		}
		idxs = append(idxs, idx)
	}
	return idxs, nil
}

func uniqueSelected(oldest, newest *selector.Selected) []*selector.Selected {
	if oldest == newest {
		return []*selector.Selected{oldest}
	}
	return []*selector.Selected{oldest, newest}
}

// addNode allocates a workspace directory and appends a new arena entry,
// inserting it into the visited set. Callers must already know the key is
// unvisited; addNode does not check.
func (o *Orchestrator) addNode(parent int, name, rawVersion string, v *semver.Version) (int, error) {
	wsParent := workspace.Root
	if parent >= 0 {
		o.mu.Lock()
		wsParent = o.nodes[parent].wsIndex
		o.mu.Unlock()
	}
	wsIdx, err := o.opts.Workspace.CreateNodeDir(wsParent, name, rawVersion)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	idx := len(o.nodes)
	o.nodes = append(o.nodes, node{
		pkg:     cvereach.PackageId{Name: name, Version: v},
		parent:  parent,
		wsIndex: wsIdx,
	})
	o.visited[name+"@"+rawVersion] = true
	return idx, nil
}

// childCandidate is a not-yet-admitted child produced by expanding a reached
// node; admission happens serially between levels via admitChildren.
type childCandidate struct {
	parent     int
	name       string
	rawVersion string
	version    *semver.Version
}

// processLevel runs every node in level concurrently, bounded by
// MaxConcurrentBFSNodes, and returns the candidate children emitted by
// expansion, without yet checking them against the visited set.
func (o *Orchestrator) processLevel(ctx context.Context, level []int, downloadSem *semaphore.Weighted) ([]childCandidate, error) {
	var (
		mu  sync.Mutex
		all []childCandidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrentBFSNodes)

	for _, idx := range level {
		idx := idx
		g.Go(func() error {
			children := o.processNode(gctx, idx, downloadSem)
			mu.Lock()
			all = append(all, children...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// processNode runs the per-node lifecycle for a single TraversalNode and
// returns its expansion candidates. Per-node failures are logged and make
// the node barren (nil return); they are never propagated as errors, per the
// error handling design.
func (o *Orchestrator) processNode(ctx context.Context, idx int, downloadSem *semaphore.Weighted) []childCandidate {
	o.mu.Lock()
	n := o.nodes[idx]
	o.mu.Unlock()

	ctx, span := tracing.Tracer.Start(ctx, "bfs.processNode", trace.WithAttributes(
		attribute.String("cvereach.package", n.pkg.String()),
		attribute.String("cvereach.purl", n.pkg.PURL()),
		attribute.Bool("cvereach.root", n.parent < 0),
	))
	defer span.End()

	ctx = rlog.ContextWithValues(ctx, "pkg", n.pkg.String(), "purl", n.pkg.PURL())

	if n.parent < 0 {
		// The root is unconditionally reached; no materialization,
		// patching, or analysis occurs for it.
		return o.expand(ctx, idx, n)
	}

	workingDir := o.opts.Workspace.WorkingDirOf(n.wsIndex)

	if err := downloadSem.Acquire(ctx, 1); err != nil {
		rlog.Logger(ctx).Warn("bfs: download semaphore", "err", err)
		return nil
	}
	_, err := o.opts.Materializer.Materialize(ctx, n.pkg.Name, n.pkg.Version.String(), workingDir)
	downloadSem.Release(1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialization failed")
		rlog.Logger(ctx).Warn("bfs: materialization failed, node barren", "err", err)
		return nil
	}

	o.mu.Lock()
	parent := o.nodes[n.parent]
	o.mu.Unlock()

	if _, err := manifest.PinParent(workingDir, o.opts.RootName, parent.pkg.Version.String()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patch failed")
		rlog.Logger(ctx).Warn("bfs: patch failed, node barren", "err", err)
		return nil
	}

	result, err := o.opts.Analyzer.Analyze(ctx, o.opts.CVEID, n.pkg.Name, n.pkg.Version.String(), workingDir, o.opts.TargetSymbols)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyzer failed")
		rlog.Logger(ctx).Warn("bfs: analyzer failed, node barren", "err", err)
		return nil
	}
	if !result.Reached {
		return nil
	}

	if err := o.opts.Artifacts.Write(o.opts.CVEID, n.pkg.Name, n.pkg.Version.String(), result.Artifact); err != nil {
		// Artifact write failure does not block expansion: the
		// reachability decision has already been made.
		rlog.Logger(ctx).Warn("bfs: artifact write failed", "err", err)
	}

	return o.expand(ctx, idx, n)
}

// expand queries the reverse dependents of n, filters to those whose
// declared requirement is satisfied by n's version, reduces each dependent
// name's surviving versions to at most two via the Version Selector, and
// returns one candidate child per surviving (name, version).
func (o *Orchestrator) expand(ctx context.Context, idx int, n node) []childCandidate {
	records, err := o.opts.Registry.DependentsOf(ctx, n.pkg.Name)
	if err != nil {
		rlog.Logger(ctx).Warn("bfs: dependents query failed, node barren", "err", err)
		return nil
	}

	byName := make(map[string][]string)
	for _, rec := range records {
		c, err := semver.NewConstraint(rec.Requirement)
		if err != nil {
			continue
		}
		if !c.Check(n.pkg.Version) {
			continue
		}
		byName[rec.DependentName] = append(byName[rec.DependentName], rec.DependentVersion)
	}

	var out []childCandidate
	for depName, versions := range byName {
		oldest, newest, err := selector.Endpoints(versions, ">=0.0.0")
		if err != nil || oldest == nil {
			continue
		}
		for _, sel := range uniqueSelected(oldest, newest) {
			out = append(out, childCandidate{
				parent:     idx,
				name:       depName,
				rawVersion: sel.Raw,
				version:    sel.Version,
			})
		}
	}
	return out
}

// admitChildren performs the serial, between-levels visited-set filtering:
// candidates already visited are dropped; the rest are inserted into the
// visited set and allocated workspaces, becoming the next level.
func (o *Orchestrator) admitChildren(children []childCandidate) []int {
	var next []int
	for _, c := range children {
		key := c.name + "@" + c.rawVersion
		o.mu.Lock()
		already := o.visited[key]
		o.mu.Unlock()
		if already {
			continue
		}
		idx, err := o.addNode(c.parent, c.name, c.rawVersion, c.version)
		if err != nil {
			// Workspace allocation failure for a non-root node is
			// per-node, not fatal: the candidate is simply dropped.
			continue
		}
		next = append(next, idx)
	}
	return next
}
