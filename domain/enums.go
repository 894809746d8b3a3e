package domain

import (
	"slices"
	"strings"
)

// Platform identifies a release target. Values match the `platform` column
// of the release table.
type Platform string

const (
	// PlatformExtension is the browser extension, shipped as a ZIP archive.
	PlatformExtension Platform = "extension"

	// PlatformDesktopWindows is the Windows desktop installer.
	PlatformDesktopWindows Platform = "desktop_windows"

	// PlatformDesktopMacOS is the macOS desktop bundle.
	PlatformDesktopMacOS Platform = "desktop_macos"

	// PlatformMobileIOS is the iOS application archive.
	PlatformMobileIOS Platform = "mobile_ios"

	// PlatformMobileAndroid is the Android package.
	PlatformMobileAndroid Platform = "mobile_android"
)

// Platforms lists every known platform in display order.
func Platforms() []Platform {
	return []Platform{
		PlatformExtension,
		PlatformDesktopWindows,
		PlatformDesktopMacOS,
		PlatformMobileIOS,
		PlatformMobileAndroid,
	}
}

// ParsePlatform converts s to a Platform, accepting any letter case.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

// String returns the string representation of the Platform.
func (p Platform) String() string {
	return string(p)
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return slices.Contains(Platforms(), p)
}

// IsMobile reports whether p is built and submitted through a mobile store.
func (p Platform) IsMobile() bool {
	return p == PlatformMobileIOS || p == PlatformMobileAndroid
}

// IsDesktop reports whether p is a desktop application.
func (p Platform) IsDesktop() bool {
	return p == PlatformDesktopWindows || p == PlatformDesktopMacOS
}

// StoreName returns the platform argument the EAS CLI expects, or "" for
// non-mobile platforms.
func (p Platform) StoreName() string {
	switch p {
	case PlatformMobileIOS:
		return "ios"
	case PlatformMobileAndroid:
		return "android"
	default:
		return ""
	}
}

// DisplayName returns a human readable name used in release notes.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformExtension:
		return "Extension"
	case PlatformDesktopWindows, PlatformDesktopMacOS:
		return "Desktop"
	case PlatformMobileIOS:
		return "iOS"
	case PlatformMobileAndroid:
		return "Android"
	default:
		return string(p)
	}
}

// BuildSource describes how an entry's artifact is obtained.
type BuildSource string

const (
	// BuildAuto selects the platform default.
	BuildAuto BuildSource = "auto"

	// BuildLocal archives or builds the artifact on this machine.
	BuildLocal BuildSource = "local"

	// BuildGitHub runs a GitHub Actions workflow and downloads its artifact.
	BuildGitHub BuildSource = "github"

	// BuildEAS runs an Expo EAS build.
	BuildEAS BuildSource = "eas"

	// BuildPrebuilt expects the file to already be in the staging directory.
	BuildPrebuilt BuildSource = "prebuilt"
)

// String returns the string representation of the BuildSource.
func (b BuildSource) String() string {
	return string(b)
}

// Valid reports whether b is a known build source.
func (b BuildSource) Valid() bool {
	switch b {
	case BuildAuto, BuildLocal, BuildGitHub, BuildEAS, BuildPrebuilt:
		return true
	default:
		return false
	}
}

// Resolve replaces BuildAuto with the default source for platform.
func (b BuildSource) Resolve(platform Platform) BuildSource {
	if b != BuildAuto && b != "" {
		return b
	}
	switch platform {
	case PlatformExtension, PlatformDesktopWindows:
		return BuildLocal
	case PlatformDesktopMacOS:
		return BuildGitHub
	case PlatformMobileIOS, PlatformMobileAndroid:
		return BuildEAS
	default:
		return BuildPrebuilt
	}
}

// OutcomeStatus is the final state of one entry in a run.
type OutcomeStatus string

const (
	// OutcomePublished means the record was inserted.
	OutcomePublished OutcomeStatus = "published"

	// OutcomeSkipped means the release already existed.
	OutcomeSkipped OutcomeStatus = "skipped"

	// OutcomeFailed means a step failed and the entry was abandoned.
	OutcomeFailed OutcomeStatus = "failed"

	// OutcomeDryRun means the artifact was resolved but nothing was changed.
	OutcomeDryRun OutcomeStatus = "dry_run"
)

// String returns the string representation of the OutcomeStatus.
func (s OutcomeStatus) String() string {
	return string(s)
}

// Stage names the pipeline step an entry reached.
type Stage string

const (
	StageCheck   Stage = "check"
	StageResolve Stage = "resolve"
	StageUpload  Stage = "upload"
	StagePublish Stage = "publish"
	StageSubmit  Stage = "submit"
	StageCleanup Stage = "cleanup"
	StageDone    Stage = "done"
)

// String returns the string representation of the Stage.
func (s Stage) String() string {
	return string(s)
}
