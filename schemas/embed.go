package schema

import _ "embed"

// Release is the CUE source of the release manifest schema.
//
//go:embed release.cue
var Release string

const (
	// ReleaseFilename is the name reported in schema error positions.
	ReleaseFilename = "release.cue"

	// ManifestDefinition is the definition a manifest document must satisfy.
	ManifestDefinition = "#Manifest"
)
