// Command cvereach-batch dispatches a CSV file of analysis rows to
// independent cvereach runs sharing one LOG_DIR. Each row is
// (cve_id, crate_name, version_range, target_function_paths), the same four
// fields the single-analysis command takes positionally. A row's failure is
// logged and does not prevent subsequent rows from running.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
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
	hasHeader := flag.Bool("has-header", false, "treat the CSV's first row as a header and skip it")
	flag.Parse()

	if flag.NArg() != 1 {
		slog.Error("cvereach-batch: fatal", "err", "usage: cvereach-batch [--has-header=true|false] <csv_path>")
		os.Exit(1)
	}
	if err := run(flag.Arg(0), *hasHeader); err != nil {
		slog.Error("cvereach-batch: fatal", "err", err)
		os.Exit(1)
	}
}

func run(csvPath string, hasHeader bool) error {
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
		return fmt.Errorf("cvereach-batch: connect to registry store: %w", err)
	}
	defer pool.Close()

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("cvereach-batch: open %s: %w", csvPath, err)
	}
	defer f.Close()

	// Shared across every row: rows frequently name the same root package
	// across different CVEs, so memoizing DependentsOf by name avoids
	// re-querying the store for a name whose cached answer is still live
	// (entries are dropped once nothing else references them).
	reg := registry.NewCaching(postgres.New(pool))

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4

	if hasHeader {
		if _, err := r.Read(); err != nil && err != io.EOF {
			return fmt.Errorf("cvereach-batch: read header: %w", err)
		}
	}

	rowNum := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			slog.Error("cvereach-batch: skipping malformed row", "row", rowNum, "err", err)
			continue
		}

		cveID, crateName, versionRange, targetPaths := row[0], row[1], row[2], row[3]
		symbols := strings.Split(targetPaths, ",")

		orch, err := bfs.New(bfs.Options{
			CVEID:         cveID,
			RootName:      crateName,
			RootRange:     versionRange,
			TargetSymbols: symbols,

			Registry:     reg,
			Workspace:    workspace.New(cfg.workingDir),
			Materializer: materialize.New(cfg.registryHost, cfg.downloadDir, nil),
			Analyzer:     runner.New(cfg.analyzerBin, cfg.logDir),
			Artifacts:    artifact.New("analysis_results"),

			MaxConcurrentBFSNodes:    cfg.maxConcurrentBFSNodes,
			MaxConcurrentDepDownload: cfg.maxConcurrentDepDownload,
		})
		if err != nil {
			slog.Error("cvereach-batch: row configuration invalid", "row", rowNum, "cve", cveID, "err", err)
			continue
		}
		if err := orch.Run(ctx); err != nil {
			slog.Error("cvereach-batch: row failed", "row", rowNum, "cve", cveID, "err", err)
			continue
		}
		slog.Info("cvereach-batch: row complete", "row", rowNum, "cve", cveID)
	}
	return nil
}
