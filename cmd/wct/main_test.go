package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WAIVERN_STORE_TYPE", "memory")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("WAIVERN_REDIS_ADDR", "")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"wct"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestRunCommandEndToEnd(t *testing.T) {
	isolateEnv(t)

	dataDir := t.TempDir()
	writeFile(t, filepath.Join(dataDir, "users.txt"), "contact email: alice@example.com\n")

	workDir := t.TempDir()
	runbookPath := filepath.Join(workDir, "runbook.yaml")
	writeFile(t, runbookPath, `
name: e2e
description: filesystem scan with personal data analysis
framework: GDPR
artifacts:
  raw:
    source:
      type: filesystem
      properties:
        path: `+dataDir+`
  findings:
    inputs: [raw]
    process:
      type: personal_data_analyser
    output: true
`)

	reportPath := filepath.Join(workDir, "report.json")
	code, stdout, stderr := runCLI(t, "run", "--output", reportPath, runbookPath)
	require.Equal(t, exitOK, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "report written to")

	report, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), `"framework": "GDPR"`)
	assert.Contains(t, string(report), "personal_data")
}

func TestRunCommandMissingRunbook(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runCLI(t, "run", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, exitPlanning, code)
	assert.Contains(t, stderr, "planning failed")
}

func TestValidateRunbookCmd(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	writeFile(t, valid, `
name: valid
description: one source artifact
artifacts:
  raw:
    source:
      type: filesystem
      properties:
        path: `+dir+`
`)
	code, stdout, _ := runCLI(t, "validate-runbook", valid)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "valid")

	cyclic := filepath.Join(dir, "cyclic.yaml")
	writeFile(t, cyclic, `
name: cyclic
description: two artifacts feeding each other
artifacts:
  a:
    inputs: [b]
    process:
      type: personal_data_analyser
  b:
    inputs: [a]
    process:
      type: personal_data_analyser
`)
	code, _, stderr := runCLI(t, "validate-runbook", cyclic)
	assert.Equal(t, exitPlanning, code)
	assert.Contains(t, stderr, "cycle")
}

func TestRunsCmdEmptyStore(t *testing.T) {
	isolateEnv(t)
	code, stdout, _ := runCLI(t, "runs")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "no runs")
}

func TestLsCommands(t *testing.T) {
	isolateEnv(t)

	code, stdout, _ := runCLI(t, "ls-connectors")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "filesystem")
	assert.Contains(t, stdout, "sqlite")
	assert.NotContains(t, stdout, "personal_data_analyser")

	code, stdout, _ = runCLI(t, "ls-processors")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "personal_data_analyser")
	assert.Contains(t, stdout, "data_subject_classifier")
	assert.NotContains(t, strings.Split(stdout, "\n")[0], "filesystem\t")

	code, stdout, _ = runCLI(t, "ls-exporters")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "GDPR")
	assert.Contains(t, stdout, "json")

	code, stdout, _ = runCLI(t, "ls-rulesets")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "local/personal_data/1.0.0")
	assert.Contains(t, stdout, "local/data_subjects/1.0.0")
	assert.Contains(t, stdout, "local/processing_purposes/1.0.0")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestPollRequiresProvider(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runCLI(t, "poll", "some-run")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "provider")
}
