// Package domain defines the release publisher's core types: the platforms
// a product ships on, how each artifact is obtained, the release entries
// declared in a manifest, the records written to the release table, and the
// per-entry outcomes of a publishing run.
package domain
