// Package message defines the typed payload exchanged between
// components. A Message must validate against its schema before it
// crosses a component boundary and is immutable after construction.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/waivern/wct/pkg/schema"
)

// ErrSchemaValidation marks a message that does not conform to its
// declared schema.
var ErrSchemaValidation = errors.New("schema validation failed")

// Message is the unit of data flowing between components.
type Message struct {
	ID      string         `json:"id"`
	Content map[string]any `json:"content"`
	Schema  schema.Schema  `json:"schema"`
	RunID   string         `json:"run_id,omitempty"`
}

// New constructs a message. Content is shared, not copied; callers
// must not mutate it after construction.
func New(id string, content map[string]any, s schema.Schema) *Message {
	return &Message{ID: id, Content: content, Schema: s}
}

// WithRunID returns a copy of m tagged with the given run.
func (m *Message) WithRunID(runID string) *Message {
	c := *m
	c.RunID = runID
	return &c
}

// Validate checks the content against the message's declared schema.
func (m *Message) Validate(reg *schema.Registry) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrSchemaValidation)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: message id is required", ErrSchemaValidation)
	}
	compiled, err := reg.Compile(m.Schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
	}
	// jsonschema validates the JSON-shaped form; round-trip to drop
	// Go-only types such as time.Time or typed slices.
	doc, err := jsonShape(m.Content)
	if err != nil {
		return fmt.Errorf("%w: content is not JSON-shaped: %v", ErrSchemaValidation, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: message %s against %s: %v", ErrSchemaValidation, m.ID, m.Schema, err)
	}
	return nil
}

// Marshal serialises the message for persistence.
func (m *Message) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message %s: %w", m.ID, err)
	}
	return data, nil
}

// Unmarshal restores a persisted message.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &m, nil
}

func jsonShape(content map[string]any) (any, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
