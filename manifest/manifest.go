// Package manifest implements the Manifest Patcher: it pins a working tree's
// declared dependency on the root vulnerable package to the exact version of
// the traversal's parent node, so the analyzer resolves against the version
// actually under test rather than whatever range the manifest declares.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/cvereach/cvereach"
)

const manifestFile = "Cargo.toml"

var dependencyTables = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// tableHeader matches a TOML table header line, e.g. "[dependencies]" or
// "[target.'cfg(unix)'.dev-dependencies]", capturing the full table name.
var tableHeader = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*$`)

// bareVersion matches `name = "1.2.3"` at the start of a line, capturing the
// quoted version string.
var bareVersion = regexp.MustCompile(`^(\s*%s\s*=\s*)"([^"]*)"(.*)$`)

// inlineTable matches `name = { ... version = "1.2.3" ... }`, capturing the
// prefix up to the version value and the suffix after it.
var inlineTable = regexp.MustCompile(`^(\s*%s\s*=\s*\{[^}]*\bversion\s*=\s*)"([^"]*)"([^}]*\}.*)$`)

// priorAnnotation strips a trailing annotation comment left by an earlier
// PinParent call, so re-patching an already-pinned manifest rewrites the
// comment instead of appending a second one.
var priorAnnotation = regexp.MustCompile(`\s*# auto lock the dependency version, from \S+ to \S+\s*$`)

// PinParent rewrites workingTree's manifest so every occurrence of
// parentName across the normal, dev, and build dependency tables is pinned
// to exactly parentVersion, annotating each rewritten line with the old and
// new value. It returns the manifest's original contents, unmodified, so a
// caller that wants to roll back can do so; PinParent itself never rolls
// back.
func PinParent(workingTree, parentName, parentVersion string) (original string, err error) {
	path := workingTree + string(os.PathSeparator) + manifestFile

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", &cvereach.Error{Op: "manifest: read", Kind: cvereach.ErrPatchFailed, Inner: err}
	}
	original = string(raw)

	if _, err := toml.LoadBytes(raw); err != nil {
		return original, &cvereach.Error{Op: "manifest: parse", Kind: cvereach.ErrPatchFailed, Inner: err}
	}

	patched, changed, err := patchLines(original, parentName, parentVersion)
	if err != nil {
		return original, &cvereach.Error{Op: "manifest: patch", Kind: cvereach.ErrPatchFailed, Inner: err}
	}
	if !changed {
		return original, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(patched), 0o644); err != nil {
		return original, &cvereach.Error{Op: "manifest: write", Kind: cvereach.ErrPatchFailed, Inner: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return original, &cvereach.Error{Op: "manifest: rename", Kind: cvereach.ErrPatchFailed, Inner: err}
	}
	return original, nil
}

// patchLines walks the manifest text line by line, tracking which TOML
// table each line sits under, and rewrites a line declaring parentName as a
// dependency (bare string or inline table form) only while inside one of
// dependencyTables — including a target-specific variant such as
// "target.'cfg(unix)'.dev-dependencies". A name that happens to match outside
// those tables (e.g. under [package.metadata]) is left untouched.
func patchLines(contents, name, version string) (string, bool, error) {
	bare := regexp.MustCompile(fmt.Sprintf(bareVersion.String(), regexp.QuoteMeta(name)))
	inline := regexp.MustCompile(fmt.Sprintf(inlineTable.String(), regexp.QuoteMeta(name)))

	var out strings.Builder
	sc := bufio.NewScanner(strings.NewReader(contents))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	changed := false
	inDependencyTable := false
	for sc.Scan() {
		line := priorAnnotation.ReplaceAllString(sc.Text(), "")
		if m := tableHeader.FindStringSubmatch(line); m != nil {
			inDependencyTable = isDependencyTable(m[1])
		} else if inDependencyTable {
			if m := inline.FindStringSubmatch(line); m != nil {
				line = fmt.Sprintf("%s%q%s %s", m[1], version, m[3], annotation(m[2], version))
				changed = true
			} else if m := bare.FindStringSubmatch(line); m != nil {
				line = fmt.Sprintf("%s%q%s %s", m[1], version, m[3], annotation(m[2], version))
				changed = true
			}
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", false, err
	}
	return out.String(), changed, nil
}

// isDependencyTable reports whether a TOML table name (as captured from a
// "[...]" header) is one of dependencyTables, either directly or as the
// trailing segment of a target-specific table like
// "target.x86_64-unknown-linux-gnu.dependencies".
func isDependencyTable(tableName string) bool {
	for _, want := range dependencyTables {
		if tableName == want || strings.HasSuffix(tableName, "."+want) {
			return true
		}
	}
	return false
}

func annotation(oldVersion, newVersion string) string {
	return fmt.Sprintf("# auto lock the dependency version, from %s to %s", oldVersion, newVersion)
}
