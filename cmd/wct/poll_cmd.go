package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/waivern/wct/pkg/config"
	"github.com/waivern/wct/pkg/llm"
	"github.com/waivern/wct/pkg/store"
)

// pollCmd implements `wct poll <run_id>`: it queries the batch
// provider for the run's submitted jobs and promotes finished results
// into the cache so a subsequent `wct run --resume` can complete.
//
// Exit codes: 0 when no jobs remain pending, 2 while jobs are still in
// flight, 1 on errors.
func pollCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("poll", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var logLevel string
	cmd.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	if err := cmd.Parse(args); err != nil {
		return exitFailed
	}
	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: wct poll <run_id>")
		return exitFailed
	}
	runID := cmd.Arg(0)

	cfg := config.Load()
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := newLogger(stderr, logLevel)

	client, err := llm.NewClientFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}
	batchClient, ok := client.(llm.BatchClient)
	if !ok {
		fmt.Fprintln(stderr, "wct: the configured LLM provider does not support batch processing")
		return exitFailed
	}

	ctx := context.Background()
	st, err := store.NewFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}
	cache, err := llmCache(cfg, st)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}

	res, err := llm.NewPoller(batchClient, cache, st, logger).PollRun(ctx, runID)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}

	fmt.Fprintf(stdout, "run %s: %d completed, %d failed, %d pending\n",
		runID, res.Completed, res.Failed, res.Pending)
	for _, e := range res.Errors {
		fmt.Fprintf(stderr, "wct: %s\n", e)
	}
	if res.Pending > 0 {
		return exitPaused
	}
	return exitOK
}
