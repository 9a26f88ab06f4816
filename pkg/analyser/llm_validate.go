package analyser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/waivern/wct/pkg/llm"
	"github.com/waivern/wct/pkg/patterns"
)

// validationSchema is the structured response the validator must
// return: one decision per finding id.
var validationSchema = llm.ResponseSchema{
	Name: "finding_validation",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"decisions"},
		"properties": map[string]any{
			"decisions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"finding_id", "valid"},
					"properties": map[string]any{
						"finding_id": map[string]any{"type": "string"},
						"valid":      map[string]any{"type": "boolean"},
						"reason":     map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

type validationDecision struct {
	FindingID string `json:"finding_id"`
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
}

type validationResponse struct {
	Decisions []validationDecision `json:"decisions"`
}

// validateFindings asks the LLM to confirm or reject each finding and
// drops the rejected ones. Findings are grouped by source so the model
// judges related matches together; in EXTENDED_CONTEXT mode the
// group's source content rides along. Errors from the service pass
// through untouched, including *llm.PendingBatch.
func validateFindings(ctx context.Context, svc *llm.Service, runID string, findings []patterns.Finding, contentBySource map[string]string, mode llm.BatchingMode) ([]patterns.Finding, error) {
	groups := groupBySource(findings, contentBySource)

	result, err := svc.Complete(ctx, runID, groups, buildValidationPrompt, validationSchema, mode)
	if err != nil {
		return nil, err
	}

	invalid := make(map[string]bool)
	for _, raw := range result.Responses {
		var resp validationResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode validation response: %w", err)
		}
		for _, d := range resp.Decisions {
			if !d.Valid {
				invalid[d.FindingID] = true
			}
		}
	}

	// Findings without a decision are kept; the validator only ever
	// removes, never invents.
	kept := make([]patterns.Finding, 0, len(findings))
	for _, f := range findings {
		if !invalid[f.ID] {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// groupBySource buckets findings per source identifier in a
// deterministic order.
func groupBySource(findings []patterns.Finding, contentBySource map[string]string) []llm.Group {
	bySource := make(map[string][]any)
	var order []string
	for _, f := range findings {
		src := f.Metadata.Source
		if _, seen := bySource[src]; !seen {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], f)
	}
	sort.Strings(order)

	groups := make([]llm.Group, 0, len(order))
	for _, src := range order {
		groups = append(groups, llm.Group{
			ID:      src,
			Content: contentBySource[src],
			Items:   bySource[src],
		})
	}
	return groups
}

// buildValidationPrompt renders the validator prompt for one batch.
func buildValidationPrompt(items []any, sharedContent string) (string, error) {
	encoded, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode findings for validation: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are reviewing automated personal-data detections for false positives.\n")
	sb.WriteString("For each finding below, decide whether it genuinely indicates personal data.\n")
	sb.WriteString("Treat test fixtures, placeholders and code identifiers as false positives.\n\n")
	if sharedContent != "" {
		sb.WriteString("Source content the findings were extracted from:\n")
		sb.WriteString(sharedContent)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Findings:\n")
	sb.Write(encoded)
	sb.WriteString("\n\nReturn a decision for every finding_id.")
	return sb.String(), nil
}
