package schema

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the current manifest schema version.
const SchemaVersion = "0.1.0"

// IsCompatible checks a manifest's schema_version against SchemaVersion
// using a caret constraint. For 0.x versions only patch changes are
// compatible.
func IsCompatible(manifestVersion string) (bool, error) {
	constraint, err := semver.NewConstraint("^" + SchemaVersion)
	if err != nil {
		return false, fmt.Errorf("invalid schema version: %w", err)
	}

	v, err := semver.NewVersion(manifestVersion)
	if err != nil {
		return false, fmt.Errorf("invalid schema_version %q: %w", manifestVersion, err)
	}

	return constraint.Check(v), nil
}

// ParseReleaseVersion parses a release version strictly: three numeric
// components, optional pre-release and build metadata, no "v" prefix.
func ParseReleaseVersion(version string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("invalid release version %q: %w", version, err)
	}
	return v, nil
}

// CompareVersions returns -1, 0 or 1 as a is older, equal or newer than b.
// Either side may carry a leading "v".
func CompareVersions(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}
