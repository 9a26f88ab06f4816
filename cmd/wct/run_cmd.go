package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/waivern/wct/pkg/config"
	"github.com/waivern/wct/pkg/executor"
	"github.com/waivern/wct/pkg/export"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/planner"
	"github.com/waivern/wct/pkg/store"
)

// runCmd implements `wct run <runbook>`.
//
// Exit codes:
//
//	0 = run completed
//	1 = run failed (a non-optional artifact failed)
//	2 = run paused awaiting batch results (resume with `wct poll` + `--resume`)
//	3 = planning or configuration error
func runCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		outputDir    string
		output       string
		exporterName string
		logLevel     string
		resume       string
	)
	cmd.StringVar(&outputDir, "output-dir", ".", "Directory for the report file")
	cmd.StringVar(&output, "output", "", "Report file path (default <output-dir>/wct_report_<run_id>.json)")
	cmd.StringVar(&exporterName, "exporter", "", "Override the runbook framework (GDPR, UK_GDPR, CCPA, json)")
	cmd.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.StringVar(&resume, "resume", "", "Resume the given run id instead of starting fresh")

	if err := cmd.Parse(args); err != nil {
		return exitPlanning
	}
	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: wct run <runbook> [flags]")
		return exitPlanning
	}
	runbookPath := cmd.Arg(0)

	cfg := config.Load()
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := newLogger(stderr, logLevel)

	schemas, components, err := registries()
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}
	plan, err := planner.New(components, schemas).Plan(runbookPath)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}

	ctx := context.Background()
	st, err := store.NewFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}
	container, err := services(cfg, st, logger)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}

	exec := executor.New(components, schemas, container, st, executor.Options{Logger: logger})
	res, err := exec.Execute(ctx, plan, resume)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		if errors.Is(err, planner.ErrPlanning) {
			return exitPlanning
		}
		return exitFailed
	}

	outputs := make(map[string]*message.Message)
	for _, id := range plan.OutputIDs() {
		msg, err := st.Get(ctx, res.RunID, store.ArtifactPrefix+id)
		if err != nil {
			if errors.Is(err, store.ErrArtifactNotFound) {
				// Skipped or pending output artifacts have no message.
				continue
			}
			fmt.Fprintf(stderr, "wct: load output %s: %v\n", id, err)
			return exitFailed
		}
		outputs[id] = msg
	}

	framework := plan.Runbook.Framework
	if exporterName != "" {
		framework = exporterName
		if exporterName == "json" {
			framework = ""
		}
	}
	exp, err := export.ForFramework(framework)
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}
	report, err := exp.Export(export.Input{Runbook: plan.Runbook, Result: res, Outputs: outputs})
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}

	path := output
	if path == "" {
		path = filepath.Join(outputDir, fmt.Sprintf("wct_report_%s.json", res.RunID))
	}
	if err := os.WriteFile(path, report, 0o644); err != nil {
		fmt.Fprintf(stderr, "wct: write report: %v\n", err)
		return exitFailed
	}

	fmt.Fprintf(stdout, "run %s %s: report written to %s\n", res.RunID, res.Status, path)
	switch res.Status {
	case store.RunStatusPaused:
		fmt.Fprintf(stdout, "batch jobs pending; advance with: wct poll %s\n", res.RunID)
		return exitPaused
	case store.RunStatusFailed:
		return exitFailed
	}
	return exitOK
}

// validateRunbookCmd plans a runbook without executing it.
func validateRunbookCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: wct validate-runbook <runbook>")
		return exitPlanning
	}
	schemas, components, err := registries()
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}
	plan, err := planner.New(components, schemas).Plan(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitPlanning
	}
	fmt.Fprintf(stdout, "%s: valid (%d artifacts, %d outputs)\n",
		plan.Runbook.Name, plan.DAG.Len(), len(plan.OutputIDs()))
	return exitOK
}
