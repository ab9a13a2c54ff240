// Package cvereach implements a concurrent, level-synchronous explorer of a
// package registry's reverse-dependency graph, used to determine which
// downstream packages actually reach a vulnerable symbol through their call
// graphs.
package cvereach

import (
	"errors"
	"strings"
)

// Error is the cvereach error domain type.
//
// Errors coming from cvereach components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Components should create an Error at the system boundary (spawning the
// analyzer, talking to the registry, touching the filesystem) and
// intermediate layers should not wrap in another Error except to add
// additional [ErrorKind] information; prefer [fmt.Errorf] with "%w" for that.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrRegistryUnavailable,
		ErrVersionUnparseable,
		ErrMaterializationFailed,
		ErrPatchFailed,
		ErrAnalyzerTimeout,
		ErrAnalyzerExitedNonZero,
		ErrAnalyzerReportedNoReach,
		ErrArtifactWriteFailed:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is]. It compares the error kind; callers should compare
// against a declared [ErrorKind] over a specific error value.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors surfaced by the core, per the error
// handling design: most kinds mark a single node barren without aborting the
// traversal; [ErrRegistryUnavailable] is the only one fatal to a run.
type ErrorKind string

// Defined error kinds.
var (
	// ErrRegistryUnavailable is fatal: it aborts the whole run. Raised by
	// the registry client when the store is unreachable or a seed query
	// fails.
	ErrRegistryUnavailable = ErrorKind("registry unavailable")

	// ErrVersionUnparseable means a version string returned by the
	// registry failed to parse as SemVer; that version is skipped, not
	// the whole operation.
	ErrVersionUnparseable = ErrorKind("version unparseable")

	// ErrMaterializationFailed covers download, extraction, copy, and
	// post-copy validation failures. The affected node is barren.
	ErrMaterializationFailed = ErrorKind("materialization failed")

	// ErrPatchFailed means the manifest was missing or unparseable. The
	// affected node is barren.
	ErrPatchFailed = ErrorKind("patch failed")

	// ErrAnalyzerTimeout means the call-graph subprocess was killed after
	// exceeding its deadline. The affected node is barren.
	ErrAnalyzerTimeout = ErrorKind("analyzer timeout")

	// ErrAnalyzerExitedNonZero means the call-graph subprocess exited with
	// a non-zero status. The affected node is barren.
	ErrAnalyzerExitedNonZero = ErrorKind("analyzer exited non-zero")

	// ErrAnalyzerReportedNoReach is not a failure: it means the analyzer
	// ran cleanly but reported no path to a target symbol. The node is
	// simply not expanded.
	ErrAnalyzerReportedNoReach = ErrorKind("analyzer reported no reach")

	// ErrArtifactWriteFailed means persisting a reached node's analyzer
	// output failed. The reachability decision stands regardless: the
	// orchestrator still expands the node.
	ErrArtifactWriteFailed = ErrorKind("artifact write failed")
)

// Error implements error.
func (e ErrorKind) Error() string { return string(e) }
