// Package connector implements source components that extract data
// from external systems into standard_input messages.
package connector

import (
	"github.com/google/uuid"

	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/schema"
)

// StandardInputSchema is the schema every connector emits by default.
var StandardInputSchema = schema.New("standard_input", "1.0.0")

// ContentItem is one extracted unit of content with its provenance.
type ContentItem struct {
	Content       string
	Source        string
	ConnectorType string
}

// newStandardInput assembles a standard_input message from extracted
// items.
func newStandardInput(name, source string, items []ContentItem) *message.Message {
	data := make([]any, 0, len(items))
	for _, it := range items {
		data = append(data, map[string]any{
			"content": it.Content,
			"metadata": map[string]any{
				"source":         it.Source,
				"connector_type": it.ConnectorType,
			},
		})
	}
	content := map[string]any{
		"schemaVersion": StandardInputSchema.Version,
		"name":          name,
		"source":        source,
		"data":          data,
	}
	return message.New(uuid.NewString(), content, StandardInputSchema)
}
