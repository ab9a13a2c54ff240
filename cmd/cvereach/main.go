// Command cvereach runs a single reverse-dependency reachability analysis:
// given a vulnerable package, a version range, and a set of target symbols,
// it traverses the package registry's reverse-dependency graph and writes
// one artifact per downstream package version confirmed to reach a target
// symbol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cvereach/cvereach/artifact"
	"github.com/cvereach/cvereach/bfs"
	"github.com/cvereach/cvereach/internal/tracing"
	"github.com/cvereach/cvereach/materialize"
	"github.com/cvereach/cvereach/registry"
	"github.com/cvereach/cvereach/registry/postgres"
	"github.com/cvereach/cvereach/runner"
	"github.com/cvereach/cvereach/workspace"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("cvereach: fatal", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: cvereach <cve_id> <crate_name> <version_range> <target_function_paths>")
	}
	cveID, crateName, versionRange, targetPaths := args[0], args[1], args[2], args[3]
	symbols := strings.Split(targetPaths, ",")

	cfg, err := configFromEnv()
	if err != nil {
		return err
	}

	ctx := context.Background()

	shutdown, err := tracing.Init(ctx, cfg.otelEndpoint)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return fmt.Errorf("cvereach: connect to registry store: %w", err)
	}
	defer pool.Close()

	orch, err := buildOrchestrator(cfg, pool, cveID, crateName, versionRange, symbols)
	if err != nil {
		return err
	}
	return orch.Run(ctx)
}

// buildOrchestrator wires the config-sourced collaborators into a ready
// bfs.Orchestrator for a single analysis.
func buildOrchestrator(cfg config, pool *pgxpool.Pool, cveID, crateName, versionRange string, symbols []string) (*bfs.Orchestrator, error) {
	return bfs.New(bfs.Options{
		CVEID:         cveID,
		RootName:      crateName,
		RootRange:     versionRange,
		TargetSymbols: symbols,

		Registry:     registry.NewCaching(postgres.New(pool)),
		Workspace:    workspace.New(cfg.workingDir),
		Materializer: materialize.New(cfg.registryHost, cfg.downloadDir, nil),
		Analyzer:     runner.New(cfg.analyzerBin, cfg.logDir),
		Artifacts:    artifact.New("analysis_results"),

		MaxConcurrentBFSNodes:    cfg.maxConcurrentBFSNodes,
		MaxConcurrentDepDownload: cfg.maxConcurrentDepDownload,
	})
}
