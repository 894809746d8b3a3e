package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/internal/publisher"
)

func banner(title string) string {
	line := strings.Repeat("=", max(len(title), 40))
	return line + "\n" + title + "\n" + line
}

func printReport(out io.Writer, report *publisher.Report) {
	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		detail := o.Detail
		if o.Status == domain.OutcomePublished && o.DownloadURL != "" {
			detail = o.DownloadURL
		}
		rows = append(rows, []string{
			o.Entry.Platform.String(),
			o.Entry.Version,
			o.Status.String(),
			o.Stage.String(),
			formatDuration(o.Duration),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Platform", "Version", "Status", "Stage", "Took", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))

	s := report.Summary
	fmt.Fprintf(out, "Uploaded: %d  Published: %d  Submitted: %d  Cleaned: %d  Skipped: %d  Failed: %d\n",
		s.Uploaded, s.Published, s.Submitted, s.Cleaned, s.Skipped, s.Failed)
	if report.DryRun {
		fmt.Fprintln(out, "Dry run: nothing was uploaded or published.")
	}
	fmt.Fprintf(out, "Finished in %s\n", formatDuration(report.Duration))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
