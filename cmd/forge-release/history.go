package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-release/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded release outcomes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cmd.Context(), cfg.Workspace.JournalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No releases recorded.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				status := e.Status.String()
				if e.DryRun {
					status += " (dry run)"
				}
				detail := e.Detail
				if detail == "" {
					detail = e.DownloadURL
				}
				rows = append(rows, []string{
					formatAge(e.RecordedAt),
					e.Platform.String(),
					e.Version,
					status,
					e.Stage.String(),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Platform", "Version", "Status", "Stage", "Detail"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of outcomes to show")
	return cmd
}
