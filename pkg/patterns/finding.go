// Package patterns implements rule-based pattern matching with
// proximity-grouped evidence extraction.
package patterns

import (
	"time"

	"github.com/google/uuid"

	"github.com/waivern/wct/pkg/ruleset"
)

// Evidence is a contextual snippet supporting a finding.
type Evidence struct {
	Content             string `json:"content"`
	CollectionTimestamp string `json:"collection_timestamp"`
}

// PatternMatch records how often a single pattern matched.
type PatternMatch struct {
	Pattern    string `json:"pattern"`
	MatchCount int    `json:"match_count"`
}

// FindingMetadata propagates the source identifier and optional
// pipeline context.
type FindingMetadata struct {
	Source  string            `json:"source"`
	Context map[string]string `json:"context,omitempty"`
}

// Finding is a single detection record. Identity is ID.
type Finding struct {
	ID              string            `json:"id"`
	Category        string            `json:"category,omitempty"`
	SpecialCategory bool              `json:"special_category,omitempty"`
	Purpose         string            `json:"purpose,omitempty"`
	RiskLevel       ruleset.RiskLevel `json:"risk_level"`
	MatchedPatterns []PatternMatch    `json:"matched_patterns"`
	Evidence        []Evidence        `json:"evidence"`
	Metadata        FindingMetadata   `json:"metadata"`
}

// FindingSet is the payload of a finding_set/1.0.0 message.
type FindingSet struct {
	SchemaVersion string    `json:"schemaVersion"`
	Analyser      string    `json:"analyser,omitempty"`
	Summary       *Summary  `json:"summary,omitempty"`
	Findings      []Finding `json:"findings"`
}

// Summary aggregates counts over a finding set.
type Summary struct {
	TotalFindings int  `json:"total_findings"`
	HighRiskCount int  `json:"high_risk_count"`
	LLMValidated  bool `json:"llm_validated"`
}

// Summarise computes the summary block for a slice of findings.
func Summarise(findings []Finding, llmValidated bool) *Summary {
	s := &Summary{TotalFindings: len(findings), LLMValidated: llmValidated}
	for _, f := range findings {
		if f.RiskLevel == ruleset.RiskHigh {
			s.HighRiskCount++
		}
	}
	return s
}

// newFindingID returns a fresh unique finding identity.
func newFindingID() string { return uuid.NewString() }

// timestamp renders collection timestamps consistently.
func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
