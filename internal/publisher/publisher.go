// Package publisher runs the release pipeline: resolve each entry's
// artifact, upload it, record it in the release table, optionally submit
// it to an app store and remove the local copy.
package publisher

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-release/aws/s3"
	"github.com/input-output-hk/catalyst-forge-release/aws/s3/s3types"
	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/artifact"
	"github.com/input-output-hk/catalyst-forge-release/internal/registry"
)

// Storage uploads artifacts.
type Storage interface {
	UploadFile(ctx context.Context, bucket, key, path string, opts ...s3types.UploadOption) (*s3types.UploadResult, error)
}

// Registry records releases.
type Registry interface {
	Exists(ctx context.Context, platform domain.Platform, version string) (bool, error)
	Publish(ctx context.Context, entry domain.Entry, downloadURL, fileName string) (*registry.PublishResult, error)
}

// Resolver makes artifacts available locally.
type Resolver interface {
	Resolve(ctx context.Context, entry domain.Entry) (*artifact.Result, error)
	Filename(entry domain.Entry) string
	Path(entry domain.Entry) string
}

// Submitter sends a finished store build for review.
type Submitter interface {
	Submit(ctx context.Context, platform, buildID string) error
}

// Journal records runs.
type Journal interface {
	BeginRun(ctx context.Context, dryRun bool, entries int) (string, error)
	RecordOutcome(ctx context.Context, runID string, outcome domain.Outcome) error
	FinishRun(ctx context.Context, runID string, summary domain.Summary) error
}

// NewTracker creates a progress tracker for an upload of total bytes.
type NewTracker func(description string, total int64) s3types.ProgressTracker

// Options configures a Publisher.
type Options struct {
	Storage   Storage
	Registry  Registry
	Resolver  Resolver
	Submitter Submitter
	Journal   Journal

	Bucket string
	// PublicBaseURL prefixes object keys to form download URLs.
	PublicBaseURL string
	CacheControl  string

	DryRun     bool
	NewTracker NewTracker
	Logger     *slog.Logger
}

// Report is the result of a run.
type Report struct {
	RunID    string
	DryRun   bool
	Outcomes []domain.Outcome
	Summary  domain.Summary
	Duration time.Duration
}

// Publisher processes release entries in order.
type Publisher struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and creates a Publisher.
func New(opts Options) (*Publisher, error) {
	if opts.Resolver == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "publisher requires an artifact resolver")
	}
	if !opts.DryRun {
		if opts.Storage == nil || opts.Registry == nil {
			return nil, errors.New(errors.CodeInvalidConfig, "publisher requires storage and a release registry")
		}
		if opts.Bucket == "" {
			return nil, errors.New(errors.CodeInvalidConfig, "storage bucket is required")
		}
		if opts.PublicBaseURL == "" {
			return nil, errors.New(errors.CodeInvalidConfig, "public download url cannot be derived; set database.url or storage.public_url")
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{opts: opts, logger: logger}, nil
}

// Run processes entries sequentially. A failing entry never stops the
// loop; only cancellation of ctx does, in which case the partial report is
// returned with the context error.
func (p *Publisher) Run(ctx context.Context, entries []domain.Entry) (*Report, error) {
	start := time.Now()
	report := &Report{DryRun: p.opts.DryRun}
	report.RunID = p.beginRun(ctx, len(entries))

	p.logger.Info("publishing releases", "count", len(entries), "dry_run", p.opts.DryRun)

	var runErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		outcome := p.process(ctx, entry)
		report.Outcomes = append(report.Outcomes, outcome)
		p.record(ctx, report.RunID, outcome)
	}

	report.Summary = domain.Summarize(report.Outcomes)
	report.Duration = time.Since(start)
	p.finishRun(ctx, report)

	p.logger.Info("results",
		"uploaded", report.Summary.Uploaded,
		"published", report.Summary.Published,
		"submitted", report.Summary.Submitted,
		"cleaned", report.Summary.Cleaned,
		"skipped", report.Summary.Skipped,
		"failed", report.Summary.Failed,
		"duration", report.Duration.Round(time.Millisecond))
	return report, runErr
}

func (p *Publisher) process(ctx context.Context, entry domain.Entry) (outcome domain.Outcome) {
	start := time.Now()
	logger := p.logger.With("release", entry.String())
	outcome = domain.Outcome{Entry: entry, Stage: domain.StageCheck}
	defer func() {
		outcome.Duration = time.Since(start)
		switch outcome.Status {
		case domain.OutcomeFailed:
			logger.Error("release failed", "stage", outcome.Stage.String(), "error", outcome.Detail)
		case domain.OutcomeSkipped:
			logger.Warn("release skipped", "reason", outcome.Detail)
		}
	}()

	logger.Info("processing release")
	fail := func(stage domain.Stage, detail string, err error) domain.Outcome {
		outcome.Stage = stage
		outcome.Status = domain.OutcomeFailed
		outcome.Detail = detail
		if err != nil {
			outcome.Detail = detail + ": " + err.Error()
		}
		return outcome
	}

	// Step 0: avoid building something that is already published.
	if p.opts.Registry != nil {
		exists, err := p.opts.Registry.Exists(ctx, entry.Platform, entry.Version)
		switch {
		case err != nil:
			logger.Warn("could not check the release table, continuing", "error", err)
		case exists:
			outcome.Status = domain.OutcomeSkipped
			outcome.Detail = "already exists in database"
			return outcome
		}
	}

	// Step 1: artifact.
	resolved, err := p.opts.Resolver.Resolve(ctx, entry)
	if err != nil {
		return fail(domain.StageResolve, "could not get file", err)
	}
	outcome.BuildID = resolved.BuildID
	key := filepath.Base(resolved.Path)

	if p.opts.DryRun {
		outcome.Stage = domain.StageResolve
		outcome.Status = domain.OutcomeDryRun
		outcome.Detail = fmt.Sprintf("would upload %s (%s)", key, humanize.IBytes(uint64(resolved.Size)))
		if p.opts.PublicBaseURL != "" {
			outcome.DownloadURL = s3.PublicURL(p.opts.PublicBaseURL, key)
		}
		logger.Info("dry run: skipping upload and publish", "file", key)
		return outcome
	}

	// Step 2: upload.
	if err := p.upload(ctx, entry, resolved, key); err != nil {
		return fail(domain.StageUpload, "upload failed, not publishing to database", err)
	}
	outcome.Uploaded = true

	// Step 3: publish.
	outcome.DownloadURL = s3.PublicURL(p.opts.PublicBaseURL, key)
	result, err := p.opts.Registry.Publish(ctx, entry, outcome.DownloadURL, key)
	if err != nil {
		if stderrors.Is(err, registry.ErrAlreadyExists) {
			outcome.Stage = domain.StagePublish
			outcome.Status = domain.OutcomeSkipped
			outcome.Detail = "already exists in database"
			return outcome
		}
		return fail(domain.StagePublish, "publish failed", err)
	}
	outcome.Published = true
	outcome.RecordID = result.ID
	outcome.Status = domain.OutcomePublished

	// Step 4: store submission.
	if entry.Submit {
		submitted, err := p.submit(ctx, logger, entry, resolved.Source, resolved.BuildID)
		if err != nil {
			return fail(domain.StageSubmit, "published but store submission failed", err)
		}
		if !submitted {
			outcome.Stage = domain.StageSubmit
			outcome.Detail = "published; submission skipped, artifact kept"
			return outcome
		}
		outcome.Submitted = true
	}

	// Step 5: cleanup.
	outcome.Stage = domain.StageCleanup
	if err := os.Remove(resolved.Path); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not delete local file", "file", key, "error", err)
		outcome.Detail = "local file kept: " + err.Error()
	} else {
		outcome.Cleaned = true
		logger.Info("deleted local file", "file", key)
	}
	outcome.Stage = domain.StageDone
	return outcome
}

func (p *Publisher) upload(ctx context.Context, entry domain.Entry, resolved *artifact.Result, key string) error {
	opts := []s3types.UploadOption{
		s3.WithMetadata(map[string]string{
			"version":  entry.Version,
			"platform": string(entry.Platform),
		}),
	}
	if p.opts.CacheControl != "" {
		opts = append(opts, s3.WithCacheControl(p.opts.CacheControl))
	}
	if p.opts.NewTracker != nil {
		opts = append(opts, s3.WithProgress(p.opts.NewTracker("uploading "+key, resolved.Size)))
	}

	p.logger.Info("uploading", "file", key, "size", humanize.IBytes(uint64(resolved.Size)), "bucket", p.opts.Bucket)
	res, err := p.opts.Storage.UploadFile(ctx, p.opts.Bucket, key, resolved.Path, opts...)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeUploadFailed, "could not upload artifact",
			map[string]any{"bucket": p.opts.Bucket, "key": key})
	}
	p.logger.Info("uploaded to storage", "file", key, "content_type", res.ContentType,
		"multipart", res.Multipart, "duration", res.Duration.Round(time.Millisecond))
	return nil
}

// submit reports whether a submission was made. Entries not built by EAS,
// or runs without a submitter, are skipped.
func (p *Publisher) submit(ctx context.Context, logger *slog.Logger, entry domain.Entry, source domain.BuildSource, buildID string) (bool, error) {
	switch {
	case !entry.Platform.IsMobile():
		logger.Warn("store submission only applies to mobile releases")
		return false, nil
	case p.opts.Submitter == nil:
		logger.Warn("store submission requested but EAS is not configured")
		return false, nil
	case source != domain.BuildEAS || buildID == "":
		logger.Warn("store submission needs an EAS build; artifact was not built by EAS", "source", string(source))
		return false, nil
	}

	logger.Info("submitting to store", "store", entry.Platform.StoreName(), "build", buildID)
	if err := p.opts.Submitter.Submit(ctx, entry.Platform.StoreName(), buildID); err != nil {
		return false, err
	}
	logger.Info("submitted to store", "store", entry.Platform.StoreName())
	return true, nil
}

func (p *Publisher) beginRun(ctx context.Context, entries int) string {
	if p.opts.Journal == nil {
		return ""
	}
	id, err := p.opts.Journal.BeginRun(ctx, p.opts.DryRun, entries)
	if err != nil {
		p.logger.Warn("could not record run in journal", "error", err)
		return ""
	}
	return id
}

func (p *Publisher) record(ctx context.Context, runID string, outcome domain.Outcome) {
	if p.opts.Journal == nil || runID == "" {
		return
	}
	if err := p.opts.Journal.RecordOutcome(ctx, runID, outcome); err != nil {
		p.logger.Warn("could not record outcome in journal", "release", outcome.Entry.String(), "error", err)
	}
}

func (p *Publisher) finishRun(ctx context.Context, report *Report) {
	if p.opts.Journal == nil || report.RunID == "" {
		return
	}
	// Record the summary even when the run was cancelled.
	if err := p.opts.Journal.FinishRun(context.WithoutCancel(ctx), report.RunID, report.Summary); err != nil {
		p.logger.Warn("could not finish run in journal", "error", err)
	}
}
