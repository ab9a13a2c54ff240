package cvereach

import (
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/package-url/packageurl-go"
)

// PackageId names a concrete, published version of a registry package.
type PackageId struct {
	Name    string
	Version *semver.Version
}

// String renders the PackageId the way it appears in artifact paths and log
// lines: "<name>-<version>".
func (p PackageId) String() string {
	return fmt.Sprintf("%s-%s", p.Name, p.Version)
}

// Key returns the (name, version) pair as a single "<name>@<version>"
// string, with the version in its normalized SemVer form. Two PackageIds
// with equal Key name the same package version.
func (p PackageId) Key() string {
	return p.Name + "@" + p.Version.String()
}

// PURL renders the PackageId as a package URL, the canonical cross-tool
// identity format used in logs and trace attributes so a node can be
// correlated with other supply-chain tooling that also speaks purl.
func (p PackageId) PURL() string {
	return packageurl.NewPackageURL(packageurl.TypeCargo, "", p.Name, p.Version.String(), nil, "").ToString()
}

// ReverseDependencyRecord is a single row out of the registry's dependency
// table: the declaration that (DependentName @ DependentVersion) depends on
// some target package under the range expression Requirement.
type ReverseDependencyRecord struct {
	DependentName    string
	DependentVersion string
	Requirement      string
}
