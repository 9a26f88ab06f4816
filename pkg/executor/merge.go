package executor

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/waivern/wct/pkg/message"
)

// collectionFields are the content arrays a concatenate merge combines,
// in lookup order. Exactly one is expected per schema family.
var collectionFields = []string{"findings", "data"}

// mergeConcatenate combines fan-in input messages into one. Items are
// concatenated in input declaration order; items carrying an "id" are
// deduplicated keeping the first occurrence. Non-collection fields are
// taken from the first input.
func mergeConcatenate(inputs []*message.Message) (*message.Message, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("merge: no inputs")
	}
	if len(inputs) == 1 {
		return inputs[0], nil
	}

	content, err := deepCopy(inputs[0].Content)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	field := ""
	for _, f := range collectionFields {
		if _, ok := content[f].([]any); ok {
			field = f
			break
		}
	}
	if field == "" {
		return nil, fmt.Errorf("merge: inputs have no collection field to concatenate")
	}

	var merged []any
	seen := make(map[string]bool)
	for _, in := range inputs {
		items, ok := in.Content[field].([]any)
		if !ok {
			return nil, fmt.Errorf("merge: input %s has no %q array", in.ID, field)
		}
		for _, item := range items {
			if id := itemID(item); id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			merged = append(merged, item)
		}
	}
	if merged == nil {
		merged = []any{}
	}
	content[field] = merged

	// Keep the summary consistent with the merged collection.
	if summary, ok := content["summary"].(map[string]any); ok {
		if _, ok := summary["total_findings"]; ok {
			summary["total_findings"] = len(merged)
		}
	}

	return message.New(uuid.NewString(), content, inputs[0].Schema), nil
}

func itemID(item any) string {
	m, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	return id
}

func deepCopy(content map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
