// Package selector implements the two-endpoint version selection heuristic:
// given a set of published version strings and a SemVer range, it picks only
// the oldest and newest versions satisfying the range, bounding the fan-out
// of the reverse-dependency traversal rather than walking every satisfying
// version.
package selector

import (
	"github.com/Masterminds/semver"
)

// Selected is one version string that survived parsing and the range check,
// together with its position in the input slice so callers can trace it back
// to the original registry response.
type Selected struct {
	Index   int
	Raw     string
	Version *semver.Version
}

// Endpoints returns the oldest and newest elements of versions that parse as
// valid SemVer and satisfy rng, in that order. Invalid version strings are
// silently skipped.
//
// If exactly one element satisfies rng, Endpoints returns it as both oldest
// and newest. If none do, both returns are nil. A malformed rng is reported
// as an error; a malformed version string is not.
func Endpoints(versions []string, rng string) (oldest, newest *Selected, err error) {
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return nil, nil, err
	}

	var matches []*Selected
	for i, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			// Unparseable version: skip, per spec, no error surfaced.
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		matches = append(matches, &Selected{Index: i, Raw: raw, Version: v})
	}
	if len(matches) == 0 {
		return nil, nil, nil
	}

	oldest, newest = matches[0], matches[0]
	for _, m := range matches[1:] {
		if m.Version.LessThan(oldest.Version) {
			oldest = m
		}
		if newest.Version.LessThan(m.Version) {
			newest = m
		}
	}
	return oldest, newest, nil
}
