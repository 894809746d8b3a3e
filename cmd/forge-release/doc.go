// Command forge-release builds, uploads and publishes product releases.
//
// A run syncs pending website changes to git, reads the release manifest
// (or detects the freshly built desktop installer), and for every entry
// resolves the artifact, uploads it to object storage, records it in the
// release table and removes the local copy.
package main
