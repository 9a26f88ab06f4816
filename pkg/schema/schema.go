// Package schema defines message schema identity and the process-wide
// JSON Schema registry used to validate messages at component
// boundaries.
package schema

import "fmt"

// Schema identifies a message schema by name and version. Two schemas
// are the same schema iff name and version are equal; the JSON Schema
// definition is resolved lazily through a Registry.
type Schema struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// New returns the schema identity for the given name and version.
func New(name, version string) Schema {
	return Schema{Name: name, Version: version}
}

// Key returns the canonical registry key "name/version".
func (s Schema) Key() string {
	return s.Name + "/" + s.Version
}

func (s Schema) String() string {
	return fmt.Sprintf("%s v%s", s.Name, s.Version)
}

// IsZero reports whether s carries no identity.
func (s Schema) IsZero() bool {
	return s.Name == "" && s.Version == ""
}
