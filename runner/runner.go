// Package runner implements the Call-Graph Runner (the Symbol Prefilter
// lives alongside it in prefilter.go): it spawns the external call-graph
// analyzer under a hard deadline, collects its output, and cleans up build
// artifacts afterward.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otrace "go.opentelemetry.io/otel/trace"

	"github.com/cvereach/cvereach"
	"github.com/cvereach/cvereach/internal/rlog"
	"github.com/cvereach/cvereach/internal/tracing"
)

// Deadline is the hard wall-clock budget for a single analyzer invocation.
const Deadline = 240 * time.Second

// GraceTimeout is how long the runner waits after sending a polite
// termination signal before forcibly killing the subprocess.
const GraceTimeout = 10 * time.Second

// Result is the outcome of a single Analyze call.
type Result struct {
	// Reached is true iff the analyzer reported at least one path to a
	// target symbol.
	Reached bool
	// Artifact is the serialized JSON array of {file, file-content}
	// records, populated only when Reached is true.
	Artifact json.RawMessage
}

// caller is one enumerated callers-*.json file.
type caller struct {
	File        string          `json:"file"`
	FileContent json.RawMessage `json:"file-content"`
}

// Runner spawns the external analyzer.
type Runner struct {
	// AnalyzerBin is the path to the call-graph analyzer binary.
	AnalyzerBin string
	// LogDir is the root under which subprocess stdout/stderr are
	// captured, one pair of files per invocation.
	LogDir string
}

// New constructs a Runner.
func New(analyzerBin, logDir string) *Runner {
	return &Runner{AnalyzerBin: analyzerBin, LogDir: logDir}
}

// Analyze runs the Symbol Prefilter, and only on a hit spawns the analyzer
// against workingTree's manifest, targeting symbols, under cveID for log
// naming and keyed by name/version for log file naming.
func (r *Runner) Analyze(ctx context.Context, cveID, name, version, workingTree string, symbols []string) (Result, error) {
	ctx, span := tracing.Tracer.Start(ctx, "runner.Analyze", otrace.WithAttributes(
		attribute.String("cvereach.name", name),
		attribute.String("cvereach.version", version),
	))
	defer span.End()

	hit, err := Prefilter(workingTree, symbols)
	if err != nil {
		return Result{}, &cvereach.Error{Op: "runner: prefilter", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}
	if !hit {
		return Result{Reached: false}, nil
	}

	manifestPath := filepath.Join(workingTree, "Cargo.toml")
	outputDir := filepath.Join(workingTree, "target")
	defer cleanBuildOutput(outputDir)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, &cvereach.Error{Op: "runner: mkdir output", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}

	stdoutPath, stderrPath, err := r.logPaths(cveID, name, version)
	if err != nil {
		return Result{}, &cvereach.Error{Op: "runner: open logs", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return Result{}, &cvereach.Error{Op: "runner: open stdout log", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}
	defer stdout.Close()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		return Result{}, &cvereach.Error{Op: "runner: open stderr log", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}
	defer stderr.Close()

	deadline, cancel := context.WithTimeout(ctx, Deadline)
	defer cancel()

	cmd := exec.CommandContext(deadline, r.AnalyzerBin,
		"--find-callers", strings.Join(symbols, ","),
		"--json-output",
		"--manifest-path", manifestPath,
		"--output-dir", outputDir,
	)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Exactly one subprocess per call, reaped before Analyze returns: on
	// deadline expiry, Cancel requests a graceful exit; WaitDelay bounds
	// how long Wait tolerates that before forcing termination.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = GraceTimeout

	runErr := cmd.Run()
	switch {
	case errors.Is(deadline.Err(), context.DeadlineExceeded):
		span.SetStatus(codes.Error, "analyzer timeout")
		rlog.Logger(ctx).Warn("runner: analyzer timed out", "name", name, "version", version)
		return Result{Reached: false}, &cvereach.Error{Op: "runner: analyze", Kind: cvereach.ErrAnalyzerTimeout, Inner: runErr}
	case runErr != nil:
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "analyzer exited non-zero")
		rlog.Logger(ctx).Warn("runner: analyzer exited non-zero", "name", name, "version", version, "err", runErr)
		return Result{Reached: false}, &cvereach.Error{Op: "runner: analyze", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: runErr}
	}

	callers, err := collectCallers(outputDir)
	if err != nil {
		return Result{}, &cvereach.Error{Op: "runner: collect callers", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}
	if len(callers) == 0 {
		return Result{Reached: false}, nil
	}

	blob, err := json.Marshal(callers)
	if err != nil {
		return Result{}, &cvereach.Error{Op: "runner: marshal result", Kind: cvereach.ErrAnalyzerExitedNonZero, Inner: err}
	}
	return Result{Reached: true, Artifact: blob}, nil
}

func (r *Runner) logPaths(cveID, name, version string) (stdout, stderr string, err error) {
	dir := filepath.Join(r.LogDir, fmt.Sprintf("%s_%d", cveID, time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	base := fmt.Sprintf("cg4rs_%s_%s", name, version)
	return filepath.Join(dir, base+".log"), filepath.Join(dir, base+"_error.log"), nil
}

// collectCallers enumerates callers-*.json files in outputDir, parses each
// as JSON, and assembles the {file, file-content} record list.
func collectCallers(outputDir string) ([]caller, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "callers-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	out := make([]caller, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		var content json.RawMessage
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("runner: %s: %w", m, err)
		}
		out = append(out, caller{File: filepath.Base(m), FileContent: content})
	}
	return out, nil
}

// cleanBuildOutput removes the build-output subtree, whether or not the
// analyzer succeeded.
func cleanBuildOutput(outputDir string) {
	os.RemoveAll(outputDir)
}
