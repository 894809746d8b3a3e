package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Commit and push pending website changes",
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
			result, err := runSync(cmd.Context(), cfg, dryRun, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case result.UpToDate:
				fmt.Fprintf(out, "%s is up to date with %s/%s\n", result.Branch, cfg.Git.Remote, result.Branch)
			case result.DryRun:
				fmt.Fprintf(out, "Dry run: %d change(s), %d unpushed commit(s) on %s\n",
					len(result.Changes), result.UnpushedTotal, result.Branch)
			default:
				if result.Commit != "" {
					fmt.Fprintf(out, "Committed %s (%s)\n", shortID(result.Commit), strings.Join(result.Staged, ", "))
				}
				if result.Pushed {
					fmt.Fprintf(out, "Pushed %s to %s\n", result.Branch, cfg.Git.Remote)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report pending changes without committing or pushing")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
