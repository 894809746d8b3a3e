package domain

import (
	"fmt"
	"time"
)

// Entry is one pending release declared in a manifest or detected from
// build output.
type Entry struct {
	// Version is the semantic version being released, without a "v" prefix.
	Version string `json:"version"`

	// Platform is the release target.
	Platform Platform `json:"platform"`

	// ReleaseNotes is the free-form text shown to users.
	ReleaseNotes string `json:"release_notes"`

	// Filename is the artifact's name in the staging directory and the
	// object key in storage.
	Filename string `json:"filename"`

	// IsLatest marks the release as the platform's current version.
	IsLatest bool `json:"is_latest"`

	// Build selects how the artifact is obtained.
	Build BuildSource `json:"build"`

	// Submit requests app store submission after publishing (mobile only).
	Submit bool `json:"submit"`
}

// String returns "<platform> v<version>".
func (e Entry) String() string {
	return fmt.Sprintf("%s v%s", e.Platform, e.Version)
}

// Key identifies the release in the table.
func (e Entry) Key() string {
	return string(e.Platform) + "@" + e.Version
}

// Source returns the effective build source.
func (e Entry) Source() BuildSource {
	return e.Build.Resolve(e.Platform)
}

// DefaultNotes returns the release notes used when none are given.
func DefaultNotes(platform Platform, version string) string {
	return fmt.Sprintf("v%s - %s Release", version, platform.DisplayName())
}

// Record is a row of the release table.
type Record struct {
	ID           any       `json:"id,omitempty"`
	Version      string    `json:"version"`
	Platform     Platform  `json:"platform"`
	ReleaseNotes string    `json:"release_notes"`
	DownloadURL  string    `json:"download_url"`
	IsLatest     bool      `json:"is_latest"`
	ReleasedAt   time.Time `json:"released_at"`

	// FileName is only sent when the table has a file_name column.
	FileName string `json:"file_name,omitempty"`
}

// NewRecord builds the record for entry pointing at downloadURL.
func NewRecord(entry Entry, downloadURL string, releasedAt time.Time) Record {
	return Record{
		Version:      entry.Version,
		Platform:     entry.Platform,
		ReleaseNotes: entry.ReleaseNotes,
		DownloadURL:  downloadURL,
		IsLatest:     entry.IsLatest,
		ReleasedAt:   releasedAt,
	}
}

// Outcome is the result of processing one entry.
type Outcome struct {
	Entry       Entry         `json:"entry"`
	Status      OutcomeStatus `json:"status"`
	Stage       Stage         `json:"stage"`
	Detail      string        `json:"detail,omitempty"`
	DownloadURL string        `json:"download_url,omitempty"`
	RecordID    string        `json:"record_id,omitempty"`
	BuildID     string        `json:"build_id,omitempty"`

	Uploaded  bool `json:"uploaded"`
	Published bool `json:"published"`
	Submitted bool `json:"submitted"`
	Cleaned   bool `json:"cleaned"`

	Duration time.Duration `json:"duration"`
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Uploaded  int `json:"uploaded"`
	Published int `json:"published"`
	Submitted int `json:"submitted"`
	Cleaned   int `json:"cleaned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Summarize counts outcomes.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Uploaded {
			s.Uploaded++
		}
		if o.Published {
			s.Published++
		}
		if o.Submitted {
			s.Submitted++
		}
		if o.Cleaned {
			s.Cleaned++
		}
		switch o.Status {
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

// OK reports whether no entry failed.
func (s Summary) OK() bool {
	return s.Failed == 0
}
