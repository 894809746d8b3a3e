// Package schema embeds the CUE schema for release manifests and the
// version rules that go with it.
//
// The schema defines #Manifest, a list of #Release entries with defaults
// for the optional fields:
//
//	releases: [{
//	    version:  "1.3.7"
//	    platform: "desktop_windows"
//	    filename: "app-desktop-1.3.7-windows.exe"
//	}]
//
// Manifests may declare schema_version; it must be caret-compatible with
// SchemaVersion.
package schema
