package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waivern/wct/pkg/executor"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/patterns"
	"github.com/waivern/wct/pkg/ruleset"
	"github.com/waivern/wct/pkg/runbook"
	"github.com/waivern/wct/pkg/schema"
)

func findingSetMessage(t *testing.T, set patterns.FindingSet) *message.Message {
	t.Helper()
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	var content map[string]any
	require.NoError(t, json.Unmarshal(raw, &content))
	return message.New(uuid.NewString(), content, schema.New("finding_set", "1.0.0"))
}

func testInput(t *testing.T, framework string, outputs map[string]*message.Message) Input {
	t.Helper()
	return Input{
		Runbook: &runbook.Runbook{
			Name:        "export-test",
			Description: "exporter fixtures",
			Framework:   framework,
			Inputs: map[string]runbook.InputDecl{
				"db_dsn": {InputSchema: "standard_input/1.0.0", Sensitive: true},
			},
		},
		Result: &executor.Result{
			RunID:          "run-1",
			StartTimestamp: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
			Artifacts: []executor.ArtifactResult{
				{ArtifactID: "raw", Success: true, DurationSeconds: 0.2},
				{ArtifactID: "findings", Success: true, DurationSeconds: 1.1},
			},
		},
		Outputs: outputs,
	}
}

func decodeReport(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestForFramework(t *testing.T) {
	for framework, want := range map[string]string{
		"":        "json",
		"GDPR":    "GDPR",
		"UK_GDPR": "UK_GDPR",
		"CCPA":    "CCPA",
	} {
		e, err := ForFramework(framework)
		require.NoError(t, err, framework)
		assert.Equal(t, want, e.Framework())
	}

	_, err := ForFramework("PIPEDA")
	assert.ErrorIs(t, err, ErrUnknownFramework)
}

func TestJSONExporterIncludesOutputs(t *testing.T) {
	set := patterns.FindingSet{
		SchemaVersion: "1.0.0",
		Analyser:      "personal_data_analyser",
		Findings: []patterns.Finding{
			{ID: "f1", Category: "contact", RiskLevel: ruleset.RiskMedium,
				Metadata: patterns.FindingMetadata{Source: "users.csv"}},
		},
	}
	in := testInput(t, "", map[string]*message.Message{
		"findings": findingSetMessage(t, set),
	})

	out, err := JSONExporter{}.Export(in)
	require.NoError(t, err)

	doc := decodeReport(t, out)
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, "completed", doc["status"])
	outputs := doc["outputs"].(map[string]any)
	require.Contains(t, outputs, "findings")
	assert.Equal(t, "finding_set/1.0.0", outputs["findings"].(map[string]any)["schema"])
}

func TestExportRedactsSensitiveValues(t *testing.T) {
	set := patterns.FindingSet{
		SchemaVersion: "1.0.0",
		Analyser:      "personal_data_analyser",
		Findings: []patterns.Finding{
			{ID: "f1", Category: "contact", Metadata: patterns.FindingMetadata{
				Source: "users.csv",
				Context: map[string]string{
					"db_dsn":   "postgres://user:hunter2@db/prod",
					"password": "hunter2",
					"table":    "users",
				},
			}},
		},
	}
	in := testInput(t, "", map[string]*message.Message{
		"findings": findingSetMessage(t, set),
	})

	out, err := JSONExporter{}.Export(in)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), redactedValue)
	assert.Contains(t, string(out), `"table": "users"`)
}

func TestGDPRExporterGroupsAndFlagsSpecialCategories(t *testing.T) {
	personal := patterns.FindingSet{
		SchemaVersion: "1.0.0",
		Analyser:      "personal_data_analyser",
		Findings: []patterns.Finding{
			{ID: "f1", Category: "contact", RiskLevel: ruleset.RiskLow},
			{ID: "f2", Category: "contact", RiskLevel: ruleset.RiskHigh},
			{ID: "f3", Category: "health", SpecialCategory: true, RiskLevel: ruleset.RiskHigh},
		},
	}
	subjects := patterns.FindingSet{
		SchemaVersion: "1.0.0",
		Analyser:      "data_subject_classifier",
		Findings: []patterns.Finding{
			{ID: "s1", Category: "employee"},
			{ID: "s2", Category: "employee"},
		},
	}
	purposes := patterns.FindingSet{
		SchemaVersion: "1.0.0",
		Analyser:      "processing_purpose_analyser",
		Findings: []patterns.Finding{
			{ID: "p1", Purpose: "marketing"},
		},
	}
	in := testInput(t, "GDPR", map[string]*message.Message{
		"personal": findingSetMessage(t, personal),
		"subjects": findingSetMessage(t, subjects),
		"purposes": findingSetMessage(t, purposes),
	})

	out, err := GDPRExporter{}.Export(in)
	require.NoError(t, err)
	doc := decodeReport(t, out)

	assert.Equal(t, "GDPR", doc["framework"])
	pd := doc["personal_data"].(map[string]any)
	assert.Equal(t, float64(3), pd["total_findings"])

	special := pd["special_categories"].(map[string]any)
	assert.Equal(t, float64(1), special["count"])
	assert.Equal(t, "Article 9", special["article"])

	assert.Equal(t, float64(2), doc["data_subjects"].(map[string]any)["employee"])
	assert.Equal(t, float64(1), doc["processing_purposes"].(map[string]any)["marketing"])
}

func TestGroupByCategoryRanksRisk(t *testing.T) {
	groups := groupByCategory([]patterns.Finding{
		{ID: "1", Category: "contact", RiskLevel: ruleset.RiskLow},
		{ID: "2", Category: "contact", RiskLevel: ruleset.RiskHigh},
		{ID: "3", RiskLevel: ruleset.RiskMedium},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "contact", groups[0].Category)
	assert.Equal(t, "high", groups[0].RiskLevel)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "uncategorised", groups[1].Category)
	assert.Equal(t, "medium", groups[1].RiskLevel)
}

func TestCCPAExporterMapsStatutoryCategories(t *testing.T) {
	set := patterns.FindingSet{
		SchemaVersion: "1.0.0",
		Analyser:      "personal_data_analyser",
		Findings: []patterns.Finding{
			{ID: "f1", Category: "contact"},
			{ID: "f2", Category: "health", SpecialCategory: true},
			{ID: "f3", Category: "genealogy"},
		},
	}
	in := testInput(t, "CCPA", map[string]*message.Message{
		"findings": findingSetMessage(t, set),
	})

	out, err := CCPAExporter{}.Export(in)
	require.NoError(t, err)
	doc := decodeReport(t, out)

	assert.Equal(t, "CCPA", doc["framework"])
	pi := doc["personal_information"].(map[string]any)
	assert.Equal(t, float64(3), pi["total_findings"])
	assert.Equal(t, float64(1), pi["sensitive_pi_findings"])

	byCat := pi["by_statutory_category"].(map[string]any)
	assert.Len(t, byCat["identifiers"].([]any), 1)
	assert.Len(t, byCat["sensitive personal information"].([]any), 1)
	assert.Len(t, byCat[ccpaFallbackCategory].([]any), 1)
}

func TestExportersSkipNonFindingOutputs(t *testing.T) {
	std := message.New(uuid.NewString(), map[string]any{
		"schemaVersion": "1.0.0",
		"name":          "raw",
		"data":          []any{},
	}, schema.New("standard_input", "1.0.0"))

	in := testInput(t, "GDPR", map[string]*message.Message{"raw": std})
	out, err := GDPRExporter{}.Export(in)
	require.NoError(t, err)
	doc := decodeReport(t, out)
	assert.Equal(t, float64(0), doc["personal_data"].(map[string]any)["total_findings"])
}
