// Package artifact turns release entries into files in the staging
// directory, either by building them locally (extension archives, Tauri
// installers), by running remote builds (EAS, GitHub Actions), or by
// checking that a prebuilt file is present.
package artifact
