package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/artifact"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
	"github.com/input-output-hk/catalyst-forge-release/internal/publisher"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Show the desktop release found in the build output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			entry, err := artifact.DetectDesktopRelease(cfg)
			if err != nil {
				if errors.HasCode(err, errors.CodeNotFound) {
					reportNewestInstaller(out, cfg, "")
				}
				return err
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Platform", "Version", "Filename", "Notes"},
				[][]string{{entry.Platform.String(), entry.Version, entry.Filename, entry.ReleaseNotes}},
				nil,
			))
			reportNewestInstaller(out, cfg, entry.Version)

			svc, err := newServices(cmd.Context(), cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()
			creds, err := svc.credentials(cmd.Context())
			if err != nil {
				return err
			}
			if publisher.CheckDatabase(creds) != nil {
				logger.Debug("database credentials missing; skipping published version lookup")
				return nil
			}
			reg, err := svc.registry(creds)
			if err != nil {
				return err
			}
			latest, err := reg.Latest(cmd.Context(), entry.Platform)
			if err != nil {
				logger.Warn("could not read latest published release", "error", err)
				return nil
			}
			if latest == nil {
				fmt.Fprintf(out, "No %s release published yet\n", entry.Platform)
				return nil
			}
			fmt.Fprintf(out, "Latest published: v%s (%s)\n", latest.Version, formatAge(latest.ReleasedAt))
			if latest.Version == entry.Version {
				fmt.Fprintln(out, "This version is already published.")
			}
			return nil
		},
	}
}

// reportNewestInstaller prints the most recently built installer when it is
// not the one for version. An empty version means none was found.
func reportNewestInstaller(out io.Writer, cfg *config.Config, version string) {
	newest, err := artifact.LatestDesktopInstaller(cfg.BundleDir(), cfg.Desktop.InstallerPrefix)
	if err != nil {
		return
	}
	if version != "" && newest.Version == version {
		return
	}
	built := "unknown version"
	if newest.Version != "" {
		built = "v" + newest.Version
	}
	fmt.Fprintf(out, "Newest built installer: %s (%s, %s)\n", filepath.Base(newest.Path), built, formatAge(newest.ModTime))
	if version != "" {
		fmt.Fprintf(out, "Warning: newest installer does not match v%s from tauri.conf.json\n", version)
	}
}
