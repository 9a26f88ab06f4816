package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/waivern/wct/pkg/store"
)

// runsCmd implements `wct runs [--status]`.
func runsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("runs", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var status string
	cmd.StringVar(&status, "status", "", "Filter by status: running, completed, failed, paused")
	if err := cmd.Parse(args); err != nil {
		return exitFailed
	}
	// "pending" is accepted as an alias for paused runs.
	if status == "pending" {
		status = store.RunStatusPaused
	}

	ctx := context.Background()
	st, err := store.NewFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}
	runs, err := st.ListRuns(ctx, status)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs")
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tSTARTED\tRUNBOOK")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), r.RunbookPath)
	}
	tw.Flush()
	return exitOK
}
