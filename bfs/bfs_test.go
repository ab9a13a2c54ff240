package bfs

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/cvereach/cvereach"
	"github.com/cvereach/cvereach/artifact"
	"github.com/cvereach/cvereach/registry"
	"github.com/cvereach/cvereach/runner"
	"github.com/cvereach/cvereach/workspace"
)

// fakeRegistry implements registry.Client over an in-memory graph, shaped by
// scenario setup rather than a real store.
type fakeRegistry struct {
	versions   map[string][]string
	dependents map[string][]cvereach.ReverseDependencyRecord
}

func (f *fakeRegistry) VersionsOf(_ context.Context, name string) ([]string, error) {
	return f.versions[name], nil
}

func (f *fakeRegistry) DependentsOf(_ context.Context, name string) ([]cvereach.ReverseDependencyRecord, error) {
	return f.dependents[name], nil
}

var _ registry.Client = (*fakeRegistry)(nil)

type fakeMaterializer struct{ calls atomic.Int64 }

func (f *fakeMaterializer) Materialize(_ context.Context, _, _, scratchDir string) (string, error) {
	f.calls.Add(1)
	return scratchDir, nil
}

// fakeAnalyzer reaches exactly the (name, version) pairs in reach.
type fakeAnalyzer struct {
	reach map[string]bool
	calls atomic.Int64
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _, name, version, _ string, _ []string) (runner.Result, error) {
	f.calls.Add(1)
	if f.reach[name+"@"+version] {
		return runner.Result{Reached: true, Artifact: json.RawMessage(`[{"file":"callers-f.json","file-content":{}}]`)}, nil
	}
	return runner.Result{Reached: false}, nil
}

func TestSingleHopReach(t *testing.T) {
	// S1: root = libA @ 1.0.0; dependent libB @ 0.1.0 requires libA = 1.0.0;
	// libB reaches. Expect artifacts for both and a visited set of size 2.
	reg := &fakeRegistry{
		versions: map[string][]string{"liba": {"1.0.0"}},
		dependents: map[string][]cvereach.ReverseDependencyRecord{
			"liba": {{DependentName: "libb", DependentVersion: "0.1.0", Requirement: "=1.0.0"}},
		},
	}
	mat := &fakeMaterializer{}
	an := &fakeAnalyzer{reach: map[string]bool{"libb@0.1.0": true}}
	art := artifact.New(t.TempDir())
	ws := workspace.New(t.TempDir())

	o, err := New(Options{
		CVEID: "CVE-TEST", RootName: "liba", RootRange: ">=1.0.0",
		TargetSymbols: []string{"crate::vuln"},
		Registry:      reg, Workspace: ws, Materializer: mat, Analyzer: an, Artifacts: art,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !art.Exists("CVE-TEST", "liba", "1.0.0") {
		t.Error("expected artifact for root liba-1.0.0")
	}
	if !art.Exists("CVE-TEST", "libb", "0.1.0") {
		t.Error("expected artifact for libb-0.1.0")
	}
	if len(o.visited) != 2 {
		t.Errorf("visited set size = %d, want 2", len(o.visited))
	}
}

func TestPrefilterMissProducesNoArtifact(t *testing.T) {
	// S2: libB does not reach; libA's artifact is still written.
	reg := &fakeRegistry{
		versions: map[string][]string{"liba": {"1.0.0"}},
		dependents: map[string][]cvereach.ReverseDependencyRecord{
			"liba": {{DependentName: "libb", DependentVersion: "0.1.0", Requirement: "=1.0.0"}},
		},
	}
	mat := &fakeMaterializer{}
	an := &fakeAnalyzer{reach: map[string]bool{}}
	art := artifact.New(t.TempDir())
	ws := workspace.New(t.TempDir())

	o, err := New(Options{
		CVEID: "CVE-TEST", RootName: "liba", RootRange: ">=1.0.0",
		TargetSymbols: []string{"crate::vuln"},
		Registry:      reg, Workspace: ws, Materializer: mat, Analyzer: an, Artifacts: art,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !art.Exists("CVE-TEST", "liba", "1.0.0") {
		t.Error("expected artifact for root liba-1.0.0")
	}
	if art.Exists("CVE-TEST", "libb", "0.1.0") {
		t.Error("libb should not have produced an artifact")
	}
}

func TestDuplicateDependentVisitedOnce(t *testing.T) {
	// S5: two distinct dependents both transitively reach libX @ 2.0.0.
	// libX must be materialized and analyzed exactly once.
	reg := &fakeRegistry{
		versions: map[string][]string{"liba": {"1.0.0"}},
		dependents: map[string][]cvereach.ReverseDependencyRecord{
			"liba": {
				{DependentName: "libb", DependentVersion: "0.1.0", Requirement: "=1.0.0"},
				{DependentName: "libc", DependentVersion: "0.1.0", Requirement: "=1.0.0"},
			},
			"libb": {{DependentName: "libx", DependentVersion: "2.0.0", Requirement: "=0.1.0"}},
			"libc": {{DependentName: "libx", DependentVersion: "2.0.0", Requirement: "=0.1.0"}},
		},
	}
	mat := &fakeMaterializer{}
	an := &fakeAnalyzer{reach: map[string]bool{
		"libb@0.1.0": true, "libc@0.1.0": true, "libx@2.0.0": true,
	}}
	art := artifact.New(t.TempDir())
	ws := workspace.New(t.TempDir())

	o, err := New(Options{
		CVEID: "CVE-TEST", RootName: "liba", RootRange: ">=1.0.0",
		TargetSymbols: []string{"crate::vuln"},
		Registry:      reg, Workspace: ws, Materializer: mat, Analyzer: an, Artifacts: art,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The visited set is a map, so it can only hold one entry per key
	// regardless of how many parents reached libx@2.0.0.
	if !o.visited["libx@2.0.0"] {
		t.Fatal("expected libx@2.0.0 to be visited")
	}
	// libb, libc, and libx are each materialized and analyzed once; the
	// root is neither materialized nor analyzed.
	if got := mat.calls.Load(); got != 3 {
		t.Errorf("materialize calls = %d, want 3", got)
	}
	if got := an.calls.Load(); got != 3 {
		t.Errorf("analyze calls = %d, want 3", got)
	}
}
