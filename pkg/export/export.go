// Package export renders a finished run as a compliance report. The
// runbook's framework selects the report vocabulary; the empty
// framework emits the raw JSON report.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/waivern/wct/pkg/executor"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/patterns"
	"github.com/waivern/wct/pkg/runbook"
)

// ErrUnknownFramework is returned by ForFramework for frameworks no
// exporter covers.
var ErrUnknownFramework = fmt.Errorf("unknown framework")

// Input is everything an exporter needs: the runbook the run was
// planned from, the execution result, and the output artifact
// messages keyed by artifact id.
type Input struct {
	Runbook *runbook.Runbook
	Result  *executor.Result
	Outputs map[string]*message.Message
}

// Exporter renders one report format.
type Exporter interface {
	// Framework is the runbook framework value this exporter serves.
	Framework() string
	// Export renders the report as pretty-printed JSON. Sensitive
	// property values are redacted before serialisation.
	Export(in Input) ([]byte, error)
}

// ForFramework selects the exporter for a runbook framework value.
func ForFramework(framework string) (Exporter, error) {
	switch framework {
	case "":
		return JSONExporter{}, nil
	case "GDPR":
		return GDPRExporter{}, nil
	case "UK_GDPR":
		return GDPRExporter{UK: true}, nil
	case "CCPA":
		return CCPAExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFramework, framework)
	}
}

// Names lists the selectable framework values, sorted, with the empty
// framework rendered as "json".
func Names() []string {
	return []string{"CCPA", "GDPR", "UK_GDPR", "json"}
}

// collectFindingSets decodes every output artifact that carries a
// finding set, in artifact id order.
func collectFindingSets(in Input) ([]patterns.FindingSet, error) {
	ids := make([]string, 0, len(in.Outputs))
	for id := range in.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sets []patterns.FindingSet
	for _, id := range ids {
		msg := in.Outputs[id]
		if msg == nil || msg.Schema.Name != "finding_set" {
			continue
		}
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("export: artifact %s: %w", id, err)
		}
		var set patterns.FindingSet
		if err := json.Unmarshal(raw, &set); err != nil {
			return nil, fmt.Errorf("export: artifact %s: %w", id, err)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// runSummary is the report header shared by every exporter.
func runSummary(in Input) map[string]any {
	status := "completed"
	switch {
	case in.Result.Pending:
		status = "paused"
	case !in.Result.Success():
		status = "failed"
	}
	artifacts := make([]any, 0, len(in.Result.Artifacts))
	for _, a := range in.Result.Artifacts {
		artifacts = append(artifacts, a)
	}
	return map[string]any{
		"run_id":                 in.Result.RunID,
		"runbook":                in.Runbook.Name,
		"description":            in.Runbook.Description,
		"start_timestamp":        in.Result.StartTimestamp,
		"status":                 status,
		"artifacts":              artifacts,
		"skipped":                in.Result.Skipped,
		"total_duration_seconds": in.Result.TotalDurationSeconds,
	}
}

// render redacts and serialises a report document. The report is
// round-tripped to generic JSON first so redaction reaches fields
// inside typed values.
func render(in Input, report map[string]any) ([]byte, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	redact(doc, sensitiveKeys(in.Runbook))
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return out, nil
}

// builtinSensitive are property names always treated as secrets,
// independent of runbook declarations.
var builtinSensitive = []string{"password", "secret", "token", "api_key"}

func sensitiveKeys(rb *runbook.Runbook) map[string]bool {
	keys := make(map[string]bool, len(builtinSensitive))
	for _, k := range builtinSensitive {
		keys[k] = true
	}
	if rb != nil {
		for _, name := range rb.SensitiveInputs() {
			keys[name] = true
		}
	}
	return keys
}

const redactedValue = "[REDACTED]"

// redact replaces the value of every sensitive key, recursively, in
// place. Matching is case-insensitive on the key name.
func redact(doc any, keys map[string]bool) {
	switch v := doc.(type) {
	case map[string]any:
		for k, val := range v {
			if keys[strings.ToLower(k)] {
				v[k] = redactedValue
				continue
			}
			redact(val, keys)
		}
	case []any:
		for _, item := range v {
			redact(item, keys)
		}
	}
}
