package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/artifact"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
	"github.com/input-output-hk/catalyst-forge-release/internal/gitsync"
	"github.com/input-output-hk/catalyst-forge-release/internal/manifest"
	"github.com/input-output-hk/catalyst-forge-release/internal/publisher"
)

type publishOptions struct {
	manifest string
	dryRun   bool
	skipGit  bool
	only     []string
}

func bindPublishFlags(cmd *cobra.Command, opts *publishOptions) {
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "Release manifest (defaults to workspace.manifest)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Resolve artifacts without uploading or publishing")
	cmd.Flags().BoolVar(&opts.skipGit, "skip-git", false, "Skip committing and pushing website changes")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "Only process these platforms")
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var opts publishOptions
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Sync git, then build, upload and publish pending releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, ctx, opts)
		},
	}
	bindPublishFlags(cmd, &opts)
	return cmd
}

func runPublish(cmd *cobra.Command, cc *commandContext, opts publishOptions) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cc.logger(cmd)
	if err != nil {
		return err
	}
	only, err := parsePlatforms(opts.only)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	unlock, err := lockStaging(cfg)
	if err != nil {
		return err
	}
	defer unlock()

	fmt.Fprintln(out, banner(cfg.Workspace.Product+" release publisher"))

	// The release loop runs even when the sync fails.
	if !opts.skipGit && cfg.Git.Enabled {
		if _, err := runSync(ctx, cfg, opts.dryRun, logger); err != nil {
			logger.Error("git sync failed", "error", err)
		}
	}

	svc, err := newServices(ctx, cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	creds, err := svc.credentials(ctx)
	if err != nil {
		return err
	}
	dbErr := publisher.CheckDatabase(creds)
	if dbErr != nil && !opts.dryRun {
		return dbErr
	}

	entries, err := loadEntries(ctx, cfg, opts.manifest, out, logger)
	if err != nil {
		return err
	}
	entries = filterEntries(entries, only)
	if len(entries) == 0 {
		fmt.Fprintln(out, "No releases match the --only filter.")
		return nil
	}

	storageErr := publisher.CheckStorage(creds)
	if storageErr != nil && !opts.dryRun {
		return storageErr
	}

	resolver, easClient, err := svc.resolver(ctx)
	if err != nil {
		return err
	}
	pubOpts := publisher.Options{
		Resolver:      resolver,
		Submitter:     easClient,
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.PublicBaseURL(),
		CacheControl:  cfg.Storage.CacheControl,
		DryRun:        opts.dryRun,
		NewTracker:    svc.uploadTracker(),
		Logger:        logger,
	}
	if dbErr == nil {
		reg, err := svc.registry(creds)
		if err != nil {
			return err
		}
		pubOpts.Registry = reg
		fmt.Fprintf(out, "Release table: %s/rest/v1/%s\n", cfg.Database.URL, cfg.Database.Table)
	} else {
		logger.Warn("dry run without database credentials; existing releases are not checked")
	}
	if storageErr == nil {
		storage, err := svc.storage(ctx, creds)
		if err != nil {
			return err
		}
		pubOpts.Storage = storage
	}
	if store := svc.openJournal(ctx); store != nil {
		defer store.Close()
		pubOpts.Journal = store
	}

	pub, err := publisher.New(pubOpts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Publishing %d release(s)%s\n", len(entries), dryRunSuffix(opts.dryRun))
	report, runErr := pub.Run(ctx, entries)
	if report != nil {
		printReport(out, report)
	}
	if runErr != nil {
		return runErr
	}
	if !report.Summary.OK() {
		return errors.Newf(errors.CodePublishFailed, "%d release(s) failed", report.Summary.Failed)
	}
	return nil
}

// loadEntries reads the manifest and falls back to detecting the desktop
// installer produced by the last local build.
func loadEntries(ctx context.Context, cfg *config.Config, override string, out io.Writer, logger *slog.Logger) ([]domain.Entry, error) {
	path := cfg.Workspace.Manifest
	if override != "" {
		path = cfg.Resolve(override)
	}
	if path != "" {
		entries, err := manifest.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			logger.Info("loaded release manifest", "path", path, "entries", len(entries))
			return entries, nil
		}
		if override != "" {
			return nil, errors.New(errors.CodeNotFound, "manifest has no releases").WithContext("path", path)
		}
	}

	fmt.Fprintln(out, "Auto-detecting releases from build output...")
	entry, err := artifact.DetectDesktopRelease(cfg)
	if err != nil {
		fmt.Fprintln(out, "No releases found. Build the app first:")
		fmt.Fprintf(out, "  cd %s && %s\n", cfg.Desktop.Dir, strings.Join(cfg.Desktop.BuildCommand, " "))
		return nil, err
	}
	fmt.Fprintf(out, "  [FOUND] Desktop v%s\n", entry.Version)
	return []domain.Entry{*entry}, nil
}

func parsePlatforms(values []string) (map[domain.Platform]bool, error) {
	if len(values) == 0 {
		return nil, nil
	}
	only := make(map[domain.Platform]bool, len(values))
	for _, v := range values {
		p, ok := domain.ParsePlatform(strings.TrimSpace(v))
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "unknown platform %q", v)
		}
		only[p] = true
	}
	return only, nil
}

func filterEntries(entries []domain.Entry, only map[domain.Platform]bool) []domain.Entry {
	if only == nil {
		return entries
	}
	var out []domain.Entry
	for _, e := range entries {
		if only[e.Platform] {
			out = append(out, e)
		}
	}
	return out
}

// lockStaging takes the run lock so two publishers cannot race on the
// staging directory.
func lockStaging(cfg *config.Config) (func(), error) {
	if err := os.MkdirAll(cfg.Workspace.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New(errors.CodeConflict, "another forge-release run is in progress").
			WithContext("lock", cfg.LockPath())
	}
	return func() { _ = lock.Unlock() }, nil
}

func runSync(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (*gitsync.Result, error) {
	syncer, err := gitsync.FromConfig(ctx, cfg, dryRun, logger.With("component", "git"))
	if err != nil {
		return nil, err
	}
	return syncer.Sync(ctx)
}

func dryRunSuffix(dryRun bool) string {
	if dryRun {
		return " (dry run)"
	}
	return ""
}
