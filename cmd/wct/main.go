// Command wct runs compliance runbooks: it plans a runbook into an
// artifact DAG, executes connectors and analysers against it, and
// exports framework-specific reports.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/waivern/wct/pkg/analyser"
	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/config"
	"github.com/waivern/wct/pkg/connector"
	"github.com/waivern/wct/pkg/llm"
	"github.com/waivern/wct/pkg/schema"
	"github.com/waivern/wct/pkg/store"
	"github.com/waivern/wct/pkg/store/rediscache"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailed   = 1
	exitPaused   = 2
	exitPlanning = 3
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitFailed
	}

	switch args[1] {
	case "run":
		return runCmd(args[2:], stdout, stderr)
	case "poll":
		return pollCmd(args[2:], stdout, stderr)
	case "runs":
		return runsCmd(args[2:], stdout, stderr)
	case "validate-runbook":
		return validateRunbookCmd(args[2:], stdout, stderr)
	case "ls-connectors":
		return lsComponentsCmd(stdout, stderr, true)
	case "ls-processors":
		return lsComponentsCmd(stdout, stderr, false)
	case "ls-exporters":
		return lsExportersCmd(stdout)
	case "ls-rulesets":
		return lsRulesetsCmd(stdout)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "wct: unknown command %q\n", args[1])
		printUsage(stderr)
		return exitFailed
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: wct <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run <runbook>          Execute a runbook (--output-dir, --output, --exporter, --log-level, --resume)")
	fmt.Fprintln(w, "  poll <run_id>          Advance a paused run's batch jobs")
	fmt.Fprintln(w, "  runs                   List known runs (--status)")
	fmt.Fprintln(w, "  validate-runbook <f>   Plan a runbook without executing it")
	fmt.Fprintln(w, "  ls-connectors          List source connector types")
	fmt.Fprintln(w, "  ls-processors          List processor types")
	fmt.Fprintln(w, "  ls-exporters           List report frameworks")
	fmt.Fprintln(w, "  ls-rulesets            List bundled rulesets")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Exit codes: 0 success, 1 run failed, 2 run paused on batch jobs, 3 planning error")
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// registries builds the schema and component registries with every
// built-in connector and analyser.
func registries() (*schema.Registry, *component.Registry, error) {
	schemas, err := schema.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	components := component.NewRegistry()
	if err := connector.RegisterAll(components); err != nil {
		return nil, nil, err
	}
	if err := analyser.RegisterAll(components); err != nil {
		return nil, nil, err
	}
	return schemas, components, nil
}

// llmCache selects the Redis cache when configured, the store-backed
// cache otherwise.
func llmCache(cfg *config.Config, st store.Store) (llm.CacheStore, error) {
	if cfg.RedisAddr != "" {
		return rediscache.New(cfg.RedisAddr)
	}
	return store.NewCache(st), nil
}

// services wires the container the component factories resolve against.
func services(cfg *config.Config, st store.Store, logger *slog.Logger) (*component.Container, error) {
	container := component.NewContainer()

	client, err := llm.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	if client == nil {
		return container, nil
	}
	cache, err := llmCache(cfg, st)
	if err != nil {
		return nil, err
	}
	container.RegisterValue(analyser.ServiceLLM, llm.NewService(client, cache, st, llm.ServiceOptions{
		Logger:            logger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		BatchSize:         cfg.BatchSize,
	}))
	return container, nil
}
