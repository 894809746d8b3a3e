package artifact

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/input-output-hk/catalyst-forge-release/ci/eas"
	"github.com/input-output-hk/catalyst-forge-release/ci/github"
	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
)

// EASBuilder builds mobile entries with Expo Application Services.
type EASBuilder struct {
	Client *eas.Client
	Logger *slog.Logger
}

// Build implements RemoteBuilder.
func (b *EASBuilder) Build(ctx context.Context, entry domain.Entry, dest string) (string, error) {
	platform := entry.Platform.StoreName()
	if platform == "" {
		return "", errors.Newf(errors.CodeInvalidInput, "eas cannot build %s", entry.Platform)
	}

	build, err := b.Client.Trigger(ctx, platform)
	if err != nil {
		return "", err
	}
	build, err = b.Client.Wait(ctx, build.ID)
	if err != nil {
		return "", err
	}
	if build.AppVersion != "" && build.AppVersion != entry.Version && b.Logger != nil {
		b.Logger.Warn("eas build version differs from release",
			"build", build.AppVersion, "release", entry.Version)
	}
	if _, err := b.Client.Download(ctx, build, dest); err != nil {
		return build.ID, err
	}
	return build.ID, nil
}

// GitHubBuilder builds entries with a GitHub Actions workflow that uploads
// the artifact to its run.
type GitHubBuilder struct {
	Client       *github.Client
	Workflow     string
	Ref          string
	ArtifactName string
	Pattern      string
	Now          func() time.Time
}

// Build implements RemoteBuilder.
func (b *GitHubBuilder) Build(ctx context.Context, entry domain.Entry, dest string) (string, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	known, err := b.Client.RunIDs(ctx, b.Workflow, b.Ref)
	if err != nil {
		return "", err
	}
	since := now()

	inputs := map[string]string{"version": entry.Version, "platform": string(entry.Platform)}
	if err := b.Client.Dispatch(ctx, b.Workflow, b.Ref, inputs); err != nil {
		return "", err
	}
	run, err := b.Client.AwaitRun(ctx, b.Workflow, b.Ref, since, known)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeBuildFailed, "dispatched workflow run did not appear")
	}
	id := strconv.FormatInt(run.ID, 10)

	if _, err := b.Client.Wait(ctx, run.ID); err != nil {
		return id, err
	}
	artifacts, err := b.Client.Artifacts(ctx, run.ID)
	if err != nil {
		return id, err
	}
	artifact, err := github.SelectArtifact(artifacts, b.ArtifactName)
	if err != nil {
		return id, err
	}
	if _, err := b.Client.DownloadArtifact(ctx, *artifact, b.Pattern, dest); err != nil {
		return id, err
	}
	return id, nil
}
