package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/artifact"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var platform, version, filename, source string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or collect one artifact into the staging directory",
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
			p, ok := domain.ParsePlatform(platform)
			if !ok {
				return errors.Newf(errors.CodeInvalidInput, "unknown platform %q", platform)
			}
			entry := domain.Entry{
				Platform: p,
				Version:  version,
				Filename: filename,
				Build:    domain.BuildSource(source),
			}
			if source != "" && !entry.Build.Valid() {
				return errors.Newf(errors.CodeInvalidInput, "unknown build source %q", source)
			}
			if entry.Version == "" {
				if entry.Version, err = localVersion(cfg, p); err != nil {
					return err
				}
			}

			unlock, err := lockStaging(cfg)
			if err != nil {
				return err
			}
			defer unlock()

			svc, err := newServices(cmd.Context(), cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()
			resolver, _, err := svc.resolver(cmd.Context())
			if err != nil {
				return err
			}
			result, err := resolver.Resolve(cmd.Context(), entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n", result.Path, humanize.IBytes(uint64(result.Size)), result.Source)
			if result.BuildID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Build ID: %s\n", result.BuildID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Release platform")
	cmd.Flags().StringVar(&version, "version", "", "Release version (detected for local builds when empty)")
	cmd.Flags().StringVar(&filename, "filename", "", "Artifact file name")
	cmd.Flags().StringVar(&source, "source", "", "Build source (local, eas, github, prebuilt)")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

// localVersion reads the version from the sources of platforms built on
// this machine.
func localVersion(cfg *config.Config, platform domain.Platform) (string, error) {
	switch platform {
	case domain.PlatformExtension:
		return artifact.ExtensionVersion(cfg.Resolve(cfg.Extension.Dir))
	case domain.PlatformDesktopWindows:
		return artifact.DesktopVersion(cfg.TauriConfigPath())
	default:
		return "", errors.Newf(errors.CodeInvalidInput, "--version is required for %s", platform)
	}
}
