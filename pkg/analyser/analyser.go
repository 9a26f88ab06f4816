// Package analyser implements the processing components that turn
// extracted content into compliance findings.
package analyser

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/patterns"
	"github.com/waivern/wct/pkg/schema"
)

// Service names resolved from the component container.
const (
	ServiceLLM = "llm"
)

// FindingSetSchema is the shared output schema of every analyser.
var FindingSetSchema = schema.New("finding_set", "1.0.0")

// standardInput mirrors the standard_input/1.0.0 payload.
type standardInput struct {
	SchemaVersion string `json:"schemaVersion"`
	Name          string `json:"name"`
	Source        string `json:"source,omitempty"`
	Data          []struct {
		Content  string `json:"content"`
		Metadata struct {
			Source        string `json:"source"`
			ConnectorType string `json:"connector_type,omitempty"`
		} `json:"metadata"`
	} `json:"data"`
}

// decodeContent maps a message payload onto a typed struct.
func decodeContent(m *message.Message, out any) error {
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return fmt.Errorf("encode message %s content: %w", m.ID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode message %s content: %w", m.ID, err)
	}
	return nil
}

// newFindingMessage wraps a finding set into a finding_set/1.0.0
// message tagged with the run.
func newFindingMessage(runID, analyserName string, findings []patterns.Finding, llmValidated bool) (*message.Message, error) {
	set := patterns.FindingSet{
		SchemaVersion: FindingSetSchema.Version,
		Analyser:      analyserName,
		Summary:       patterns.Summarise(findings, llmValidated),
		Findings:      findings,
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode finding set: %w", err)
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("shape finding set: %w", err)
	}
	// findings must serialise as [] rather than null for the schema.
	if findings == nil {
		content["findings"] = []any{}
	}
	msg := message.New(uuid.NewString(), content, FindingSetSchema)
	return msg.WithRunID(runID), nil
}

// decodeFindingSet maps a finding_set message back to typed findings.
func decodeFindingSet(m *message.Message) (*patterns.FindingSet, error) {
	var set patterns.FindingSet
	if err := decodeContent(m, &set); err != nil {
		return nil, err
	}
	return &set, nil
}
